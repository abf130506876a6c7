package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/repository"
)

var _ repository.UserStateRepository = (*userStateRepo)(nil)

type userStateRepo struct{ store }

func NewUserStateRepo(pool *pgxpool.Pool, timeout time.Duration) *userStateRepo {
	return &userStateRepo{store: newStore(pool, timeout)}
}

func (r *userStateRepo) Get(ctx context.Context, userID int64) (*model.UserState, error) {
	ctx, cancel := r.bounded(ctx, nil)
	defer cancel()

	const q = `SELECT persona_id, current_session, conversation_history, preferences, updated_at FROM user_states WHERE user_id=$1;`
	row, err := pickRow(ctx, r.pool, nil, q, userID)
	if err != nil {
		return nil, err
	}

	var (
		persona   string
		blobs     model.StateBlobs
		updatedAt time.Time
	)
	if err := row.Scan(&persona, &blobs.Session, &blobs.History, &blobs.Prefs, &updatedAt); err != nil {
		return nil, mapError(err)
	}
	return model.DecodeState(userID, persona, blobs, updatedAt)
}

// Upsert writes the whole row; the last writer wins.
func (r *userStateRepo) Upsert(ctx context.Context, s *model.UserState) error {
	blobs, err := model.EncodeState(s)
	if err != nil {
		return err
	}
	ctx, cancel := r.bounded(ctx, nil)
	defer cancel()

	var session interface{}
	if blobs.Session != nil {
		session = blobs.Session
	}

	const q = `
INSERT INTO user_states (user_id, persona_id, current_session, conversation_history, preferences, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (user_id) DO UPDATE SET
  persona_id=EXCLUDED.persona_id,
  current_session=EXCLUDED.current_session,
  conversation_history=EXCLUDED.conversation_history,
  preferences=EXCLUDED.preferences,
  updated_at=EXCLUDED.updated_at;`

	if _, err := execSQL(ctx, r.pool, nil, q, s.UserID, s.PersonaID, session, blobs.History, blobs.Prefs, s.UpdatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

func (r *userStateRepo) ListWithSession(ctx context.Context) (repository.StateScan, error) {
	ctx, cancel := r.bounded(ctx, nil)
	defer cancel()

	var out repository.StateScan
	const q = `SELECT user_id, persona_id, current_session, conversation_history, preferences, updated_at FROM user_states WHERE current_session IS NOT NULL ORDER BY user_id;`
	rows, err := queryRows(ctx, r.pool, nil, q)
	if err != nil {
		return out, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID    int64
			persona   string
			blobs     model.StateBlobs
			updatedAt time.Time
		)
		if err := rows.Scan(&userID, &persona, &blobs.Session, &blobs.History, &blobs.Prefs, &updatedAt); err != nil {
			return out, mapError(err)
		}
		st, err := model.DecodeState(userID, persona, blobs, updatedAt)
		if err != nil {
			if errors.Is(err, domain.ErrSerialization) {
				out.Corrupt = append(out.Corrupt, userID)
				continue
			}
			return out, err
		}
		out.States = append(out.States, st)
	}
	if err := rows.Err(); err != nil {
		return out, mapError(fmt.Errorf("scan user_states: %w", err))
	}
	return out, nil
}
