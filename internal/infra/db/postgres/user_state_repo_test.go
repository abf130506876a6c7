//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
)

func TestUserStateRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewUserStateRepo(testPool, 5*time.Second)

	t.Run("should report a missing user as not found", func(t *testing.T) {
		cleanup(t)
		_, err := repo.Get(ctx, 404)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("should round-trip a state with a session", func(t *testing.T) {
		cleanup(t)
		now := time.Now().UTC().Truncate(time.Second)
		b, err := model.NewBooking("b1", 1, "anna", 30, 3, "t1", nil, now, 5*time.Minute)
		require.NoError(t, err)
		st := model.NewUserState(1, "anna")
		st.ReplaceSession(model.NewSessionFromBooking(b, now))
		st.CurrentSession.AppendExchange("hi", "hello", now)
		st.SetTemperature(0.5)
		st.UpdatedAt = now

		require.NoError(t, repo.Upsert(ctx, st))
		got, err := repo.Get(ctx, 1)

		require.NoError(t, err)
		require.NotNil(t, got.CurrentSession)
		assert.True(t, got.CurrentSession.IsActive)
		assert.Equal(t, 1, got.CurrentSession.MessagesExchanged)
		assert.Equal(t, 0.5, got.Temperature())
	})

	t.Run("should overwrite the whole row", func(t *testing.T) {
		cleanup(t)
		now := time.Now().UTC()
		b, _ := model.NewBooking("b1", 1, "anna", 30, 3, "t1", nil, now, 5*time.Minute)
		st := model.NewUserState(1, "anna")
		st.ReplaceSession(model.NewSessionFromBooking(b, now))
		require.NoError(t, repo.Upsert(ctx, st))

		cleared := model.NewUserState(1, "maxim")
		require.NoError(t, repo.Upsert(ctx, cleared))

		got, err := repo.Get(ctx, 1)
		require.NoError(t, err)
		assert.Nil(t, got.CurrentSession)
		assert.Equal(t, "maxim", got.PersonaID)
	})

	t.Run("should scan sessions and report corrupt rows", func(t *testing.T) {
		cleanup(t)
		now := time.Now().UTC()
		b, _ := model.NewBooking("b1", 1, "anna", 30, 3, "t1", nil, now, 5*time.Minute)
		withSession := model.NewUserState(1, "anna")
		withSession.ReplaceSession(model.NewSessionFromBooking(b, now))
		require.NoError(t, repo.Upsert(ctx, withSession))
		require.NoError(t, repo.Upsert(ctx, model.NewUserState(2, "anna")))
		_, err := testPool.Exec(ctx, `INSERT INTO user_states (user_id, persona_id, current_session) VALUES (3, 'anna', '"not a session"'::jsonb)`)
		require.NoError(t, err)

		scan, err := repo.ListWithSession(ctx)

		require.NoError(t, err)
		require.Len(t, scan.States, 1)
		assert.Equal(t, int64(1), scan.States[0].UserID)
		assert.Equal(t, []int64{3}, scan.Corrupt)
	})
}
