package repository

import (
	"context"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
)

// UserStateRepository persists one row per user. Upsert is whole-row
// last-writer-wins.
type UserStateRepository interface {
	// Get returns domain.ErrNotFound when the user has no row yet.
	Get(ctx context.Context, userID int64) (*model.UserState, error)
	Upsert(ctx context.Context, s *model.UserState) error
	// ListWithSession scans every state that carries a session. Rows whose
	// JSON cannot be decoded are reported in Corrupt instead of failing the scan.
	ListWithSession(ctx context.Context) (StateScan, error)
}

type StateScan struct {
	States  []*model.UserState
	Corrupt []int64
}
