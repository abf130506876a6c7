// File: internal/usecase/catalog_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/repository"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/cache"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/logging"
)

// Compile-time check
var _ CatalogUseCase = (*catalogUC)(nil)

const pricesKey = "persona_prices"

// CatalogUseCase serves the persona catalog with admin-managed prices and
// bookable durations layered over the configured defaults.
type CatalogUseCase interface {
	Resolve(ctx context.Context, personaID string) model.PersonaResolution
	List(ctx context.Context) []model.Persona
	// TimeSlots never returns an empty list.
	TimeSlots(ctx context.Context) []model.TimeSlot
	TimeSlot(ctx context.Context, id int) (model.TimeSlot, error)
	Quote(p model.Persona, slot model.TimeSlot) float64
	UpcomingStarts(now time.Time) []time.Time
}

type catalogUC struct {
	base      *model.Catalog
	repo      repository.CatalogRepository
	prices    *cache.TTLCache[string, map[string]float64]
	schedules int
	log       *zerolog.Logger
}

// NewCatalogUseCase refreshes DB prices at most once per ttl. repo may be nil.
func NewCatalogUseCase(base *model.Catalog, repo repository.CatalogRepository, ttl time.Duration, upcomingStarts int, logger *zerolog.Logger) *catalogUC {
	return &catalogUC{
		base:      base,
		repo:      repo,
		prices:    cache.NewTTLCache[string, map[string]float64](ttl),
		schedules: upcomingStarts,
		log:       logging.Component(logger, "catalog"),
	}
}

func (u *catalogUC) current(ctx context.Context) *model.Catalog {
	if u.repo == nil {
		return u.base
	}
	if p, ok := u.prices.Get(pricesKey); ok {
		return u.base.WithPrices(p)
	}
	p, err := u.repo.ListPrices(ctx)
	if err != nil {
		logging.ErrEvent(u.log.Warn(), err).Msg("price lookup failed; using configured prices")
		return u.base
	}
	u.prices.Set(pricesKey, p)
	return u.base.WithPrices(p)
}

func (u *catalogUC) Resolve(ctx context.Context, personaID string) model.PersonaResolution {
	r := u.current(ctx).Resolve(personaID)
	if r.IsFallback() && personaID != "" {
		u.log.Debug().Str("requested", personaID).Str("served", r.Persona.ID).Msg("unknown persona; serving default")
	}
	return r
}

func (u *catalogUC) List(ctx context.Context) []model.Persona {
	return u.current(ctx).List()
}

func (u *catalogUC) TimeSlots(ctx context.Context) []model.TimeSlot {
	if u.repo == nil {
		return []model.TimeSlot{model.DefaultTimeSlot()}
	}
	slots, err := u.repo.ListActiveTimeSlots(ctx)
	if err != nil {
		logging.ErrEvent(u.log.Warn(), err).Msg("time slot lookup failed; offering default")
	}
	if len(slots) == 0 {
		return []model.TimeSlot{model.DefaultTimeSlot()}
	}
	return slots
}

func (u *catalogUC) TimeSlot(ctx context.Context, id int) (model.TimeSlot, error) {
	if u.repo != nil {
		s, err := u.repo.GetTimeSlot(ctx, id)
		switch {
		case err == nil && s.IsActive:
			return *s, nil
		case err == nil, errors.Is(err, domain.ErrNotFound):
			return model.TimeSlot{}, fmt.Errorf("%w: time slot %d", domain.ErrNotFound, id)
		default:
			logging.ErrEvent(u.log.Warn(), err).Int("slot_id", id).Msg("time slot lookup failed")
		}
	}
	for _, s := range u.TimeSlots(ctx) {
		if s.ID == id {
			return s, nil
		}
	}
	return model.TimeSlot{}, fmt.Errorf("%w: time slot %d", domain.ErrNotFound, id)
}

func (u *catalogUC) Quote(p model.Persona, slot model.TimeSlot) float64 {
	return p.Price(slot.DurationMinutes, slot.PriceMultiplier)
}

func (u *catalogUC) UpcomingStarts(now time.Time) []time.Time {
	return model.UpcomingStarts(now, u.schedules)
}
