package repository

import (
	"context"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
)

// CatalogRepository reads admin-managed catalog tables.
type CatalogRepository interface {
	ListPrices(ctx context.Context) (map[string]float64, error)
	ListActiveTimeSlots(ctx context.Context) ([]model.TimeSlot, error)
	GetTimeSlot(ctx context.Context, id int) (*model.TimeSlot, error)
}
