// File: internal/usecase/state_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/repository"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/logging"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/metrics"
)

const (
	FieldHistory     = "conversation_history"
	FieldPreferences = "preferences"
	FieldSession     = "current_session"

	stateCacheName = "user_state"
)

// Compile-time check
var _ StateUseCase = (*stateUC)(nil)

// StateUseCase is the only way the rest of the bot reads or writes UserState.
type StateUseCase interface {
	// Get never fails: store errors degrade to a default state.
	Get(ctx context.Context, userID int64) *model.UserState
	// Fetch is the strict variant of Get; missing users still get a default state.
	Fetch(ctx context.Context, userID int64) (*model.UserState, error)
	// Save writes the store first and the cache only once the store accepted it.
	Save(ctx context.Context, s *model.UserState) error
	// ListAll scans every state that carries a session, bypassing the cache.
	ListAll(ctx context.Context) ([]*model.UserState, error)
	// EvictStale drops expired cache entries and returns how many were removed.
	EvictStale() int
}

// StateCache is the cache handle owned by the state use case.
type StateCache interface {
	Get(userID int64) (*model.UserState, bool)
	Set(userID int64, s *model.UserState)
	EvictExpired() int
	Len() int
}

// StateLimits caps the serialized size of each persisted field, in bytes.
type StateLimits struct {
	HistoryMaxBytes int
	PrefsMaxBytes   int
	SessionMaxBytes int
}

type stateUC struct {
	repo           repository.UserStateRepository
	cache          StateCache
	defaultPersona string
	limits         StateLimits
	log            *zerolog.Logger
	now            func() time.Time
}

func NewStateUseCase(repo repository.UserStateRepository, cache StateCache, defaultPersona string, limits StateLimits, logger *zerolog.Logger) *stateUC {
	return &stateUC{
		repo:           repo,
		cache:          cache,
		defaultPersona: defaultPersona,
		limits:         limits,
		log:            logging.Component(logger, "state"),
		now:            time.Now,
	}
}

func (u *stateUC) Get(ctx context.Context, userID int64) *model.UserState {
	s, err := u.Fetch(ctx, userID)
	if err != nil {
		logging.ErrEvent(u.log.Warn(), err).Int64("user_id", userID).Msg("state read failed; serving default")
		return model.NewUserState(userID, u.defaultPersona)
	}
	return s
}

func (u *stateUC) Fetch(ctx context.Context, userID int64) (*model.UserState, error) {
	if s, ok := u.cache.Get(userID); ok {
		metrics.IncCacheRequest(stateCacheName, "hit")
		return s.Clone(), nil
	}
	metrics.IncCacheRequest(stateCacheName, "miss")

	s, err := u.repo.Get(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		s = model.NewUserState(userID, u.defaultPersona)
	default:
		return nil, err
	}
	if s.PersonaID == "" {
		s.PersonaID = u.defaultPersona
	}
	u.cache.Set(userID, s.Clone())
	return s, nil
}

func (u *stateUC) Save(ctx context.Context, s *model.UserState) error {
	if s == nil || s.UserID == 0 {
		return domain.ErrInvalidArgument
	}
	blobs, err := model.EncodeState(s)
	if err != nil {
		return err
	}
	if err := u.checkSize(blobs); err != nil {
		return err
	}

	s.UpdatedAt = u.now().UTC()
	if err := u.repo.Upsert(ctx, s); err != nil {
		logging.ErrEvent(u.log.Error(), err).Int64("user_id", s.UserID).Msg("state write failed")
		return err
	}
	u.cache.Set(s.UserID, s.Clone())
	return nil
}

func (u *stateUC) checkSize(b model.StateBlobs) error {
	check := func(field string, blob []byte, limit int) error {
		if limit > 0 && len(blob) > limit {
			return &domain.FieldTooLargeError{Field: field, Size: len(blob), Limit: limit}
		}
		return nil
	}
	if err := check(FieldHistory, b.History, u.limits.HistoryMaxBytes); err != nil {
		return err
	}
	if err := check(FieldPreferences, b.Prefs, u.limits.PrefsMaxBytes); err != nil {
		return err
	}
	return check(FieldSession, b.Session, u.limits.SessionMaxBytes)
}

func (u *stateUC) ListAll(ctx context.Context) ([]*model.UserState, error) {
	defer logging.TraceDuration(u.log, "StateUC.ListAll")()

	scan, err := u.repo.ListWithSession(ctx)
	if err != nil {
		return nil, err
	}
	if len(scan.Corrupt) > 0 {
		u.log.Warn().Ints64("user_ids", scan.Corrupt).Msg("skipping undecodable user states")
	}
	return scan.States, nil
}

func (u *stateUC) EvictStale() int {
	n := u.cache.EvictExpired()
	metrics.AddCacheEvictions(stateCacheName, n)
	metrics.SetCacheEntries(stateCacheName, u.cache.Len())
	return n
}
