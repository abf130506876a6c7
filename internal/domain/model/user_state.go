package model

import "time"

const DefaultTemperature = 0.3

// Preferences carries per-user chat settings.
type Preferences struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

// UserState is the per-user conversational state. Created lazily on first
// read, never deleted.
type UserState struct {
	UserID              int64
	PersonaID           string
	CurrentSession      *UserSession
	ConversationHistory []ChatMessage // rolling transcript across sessions
	Preferences         Preferences
	UpdatedAt           time.Time
}

func NewUserState(userID int64, personaID string) *UserState {
	return &UserState{
		UserID:              userID,
		PersonaID:           personaID,
		ConversationHistory: []ChatMessage{},
	}
}

// Temperature returns the user's preference or the default.
func (u *UserState) Temperature() float64 {
	if u.Preferences.Temperature == nil {
		return DefaultTemperature
	}
	return *u.Preferences.Temperature
}

func (u *UserState) SetTemperature(t float64) {
	u.Preferences.Temperature = &t
}

// ActiveSession returns the current session when chat is allowed at now.
func (u *UserState) ActiveSession(now time.Time) (*UserSession, bool) {
	if u.CurrentSession == nil || !u.CurrentSession.ActiveAt(now) {
		return nil, false
	}
	return u.CurrentSession, true
}

// ReplaceSession installs s as the only live session.
func (u *UserState) ReplaceSession(s *UserSession) {
	u.CurrentSession = s
	if s != nil {
		u.PersonaID = s.PersonaID
	}
}

// ClearHistory empties both the transcript and the live session's history.
func (u *UserState) ClearHistory() {
	u.ConversationHistory = []ChatMessage{}
	if u.CurrentSession != nil {
		u.CurrentSession.History = []ChatMessage{}
	}
}

// Clone returns a deep copy safe to hand across goroutines.
func (u *UserState) Clone() *UserState {
	if u == nil {
		return nil
	}
	c := *u
	c.CurrentSession = u.CurrentSession.Clone()
	c.ConversationHistory = cloneMessages(u.ConversationHistory)
	if u.Preferences.Temperature != nil {
		t := *u.Preferences.Temperature
		c.Preferences.Temperature = &t
	}
	return &c
}
