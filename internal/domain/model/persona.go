package model

import "math"

// Persona is a read-only catalog entry for a consultant the user can book.
type Persona struct {
	ID             string
	Name           string
	Model          string
	Prompt         string
	Description    string
	Specialty      string
	Greeting       string
	PricePerMinute float64
}

// Price returns the total for a session of the given length.
func (p Persona) Price(minutes int, multiplier float64) float64 {
	if multiplier <= 0 {
		multiplier = 1
	}
	return math.Round(p.PricePerMinute*float64(minutes)*multiplier*100) / 100
}

type ResolutionKind int

const (
	ResolvedExact ResolutionKind = iota
	ResolvedFallback
)

// PersonaResolution is the outcome of a catalog lookup. Fallback means the
// requested id was unknown and the designated default was returned instead.
type PersonaResolution struct {
	Persona Persona
	Kind    ResolutionKind
}

func (r PersonaResolution) IsFallback() bool { return r.Kind == ResolvedFallback }

// Catalog is an immutable ordered set of personas with a designated default.
type Catalog struct {
	order     []string
	byID      map[string]Persona
	defaultID string
}

// NewCatalog keeps personas in the given order. defaultID falls back to the
// first persona when empty or unknown.
func NewCatalog(personas []Persona, defaultID string) *Catalog {
	c := &Catalog{byID: make(map[string]Persona, len(personas))}
	for _, p := range personas {
		if _, dup := c.byID[p.ID]; dup {
			continue
		}
		c.order = append(c.order, p.ID)
		c.byID[p.ID] = p
	}
	if _, ok := c.byID[defaultID]; ok {
		c.defaultID = defaultID
	} else if len(c.order) > 0 {
		c.defaultID = c.order[0]
	}
	return c
}

func (c *Catalog) DefaultID() string { return c.defaultID }

// Resolve looks up id, falling back to the default persona.
func (c *Catalog) Resolve(id string) PersonaResolution {
	if p, ok := c.byID[id]; ok {
		return PersonaResolution{Persona: p, Kind: ResolvedExact}
	}
	return PersonaResolution{Persona: c.byID[c.defaultID], Kind: ResolvedFallback}
}

// Lookup is the strict variant of Resolve.
func (c *Catalog) Lookup(id string) (Persona, bool) {
	p, ok := c.byID[id]
	return p, ok
}

func (c *Catalog) List() []Persona {
	out := make([]Persona, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// WithPrices returns a copy whose per-minute prices are overridden by prices.
func (c *Catalog) WithPrices(prices map[string]float64) *Catalog {
	list := c.List()
	for i := range list {
		if v, ok := prices[list[i].ID]; ok && v >= 0 {
			list[i].PricePerMinute = v
		}
	}
	return NewCatalog(list, c.defaultID)
}

// DefaultPersonas is the built-in catalog used when none is configured.
// Prices are overridden from the store.
func DefaultPersonas() []Persona {
	return []Persona{
		{
			ID:             "anna",
			Name:           "Anna",
			Model:          "gpt-4o-mini",
			Description:    "Conversation partner",
			Specialty:      "Everyday questions and support",
			Greeting:       "Hello! I'm Anna. Tell me what's on your mind and we'll sort it out together.",
			Prompt:         "You are Anna, a supportive assistant for everyday life. Help the user break problems down, give practical advice and ask clarifying questions so they find their own answers.",
			PricePerMinute: 0.10,
		},
		{
			ID:             "maxim",
			Name:           "Maxim",
			Model:          "gpt-4o",
			Description:    "Mentor",
			Specialty:      "Self-development and planning",
			Greeting:       "Hi! I'm Maxim. I can help you plan, build skills and understand yourself better. Where do we start?",
			Prompt:         "You are Maxim, a mentor for self-development. Help the user set goals, plan and grow skills. Ask leading questions and advise without imposing decisions.",
			PricePerMinute: 0.09,
		},
		{
			ID:             "sofia",
			Name:           "Sofia",
			Model:          "gemini-2.0-flash",
			Description:    "Consultant",
			Specialty:      "Support and motivation",
			Greeting:       "Good day! I'm Sofia. Happy to talk through ideas and help you find motivation for new goals.",
			Prompt:         "You are Sofia, a consultant for support and motivation. Keep the conversation safe, help the user structure their thoughts and reach their own solutions.",
			PricePerMinute: 0.08,
		},
		{
			ID:             "alexey",
			Name:           "Alexey",
			Model:          "gpt-4.1-mini",
			Description:    "Coach",
			Specialty:      "Goal setting and productivity",
			Greeting:       "Hello! I'm Alexey. Let's define your goals and draw up a plan. What would you like to achieve?",
			Prompt:         "You are Alexey, a coach for goal setting and productivity. Help the user identify tasks, build plans and find ways to reach their goals.",
			PricePerMinute: 0.07,
		},
	}
}
