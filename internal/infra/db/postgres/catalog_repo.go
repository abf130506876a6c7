package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/ports/repository"
)

var _ repository.CatalogRepository = (*catalogRepo)(nil)

type catalogRepo struct{ store }

func NewCatalogRepo(pool *pgxpool.Pool, timeout time.Duration) *catalogRepo {
	return &catalogRepo{store: newStore(pool, timeout)}
}

func (r *catalogRepo) ListPrices(ctx context.Context) (map[string]float64, error) {
	ctx, cancel := r.bounded(ctx, nil)
	defer cancel()

	rows, err := queryRows(ctx, r.pool, nil, `SELECT persona_id, price_per_minute FROM persona_prices;`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var id string
		var price float64
		if err := rows.Scan(&id, &price); err != nil {
			return nil, mapError(err)
		}
		out[id] = price
	}
	return out, mapError(rows.Err())
}

func (r *catalogRepo) ListActiveTimeSlots(ctx context.Context) ([]model.TimeSlot, error) {
	ctx, cancel := r.bounded(ctx, nil)
	defer cancel()

	const q = `SELECT id, duration_minutes, description, price_multiplier, is_active, sort_order
 FROM time_slots WHERE is_active ORDER BY sort_order, id;`
	rows, err := queryRows(ctx, r.pool, nil, q)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []model.TimeSlot
	for rows.Next() {
		var s model.TimeSlot
		if err := rows.Scan(&s.ID, &s.DurationMinutes, &s.Description, &s.PriceMultiplier, &s.IsActive, &s.SortOrder); err != nil {
			return nil, mapError(err)
		}
		out = append(out, s)
	}
	return out, mapError(rows.Err())
}

func (r *catalogRepo) GetTimeSlot(ctx context.Context, id int) (*model.TimeSlot, error) {
	ctx, cancel := r.bounded(ctx, nil)
	defer cancel()

	const q = `SELECT id, duration_minutes, description, price_multiplier, is_active, sort_order FROM time_slots WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, nil, q, id)
	if err != nil {
		return nil, err
	}
	var s model.TimeSlot
	if err := row.Scan(&s.ID, &s.DurationMinutes, &s.Description, &s.PriceMultiplier, &s.IsActive, &s.SortOrder); err != nil {
		return nil, mapError(err)
	}
	return &s, nil
}

// UpsertPrice sets the per-minute price of a persona.
func (r *catalogRepo) UpsertPrice(ctx context.Context, personaID string, price float64) error {
	ctx, cancel := r.bounded(ctx, nil)
	defer cancel()

	const q = `INSERT INTO persona_prices (persona_id, price_per_minute, updated_at) VALUES ($1, $2, NOW())
 ON CONFLICT (persona_id) DO UPDATE SET price_per_minute = EXCLUDED.price_per_minute, updated_at = NOW();`
	_, err := execSQL(ctx, r.pool, nil, q, personaID, price)
	return mapError(err)
}
