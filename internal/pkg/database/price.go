package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anicoll/fritz-collector/internal/pkg/model"
)

// ActivePrice returns the most recent entry that is open-ended or still
// valid at the given time, or nil when there is none.
func (db *Database) ActivePrice(ctx context.Context, at time.Time) (*model.PriceEntry, error) {
	var p model.PriceEntry
	var desc *string
	err := db.pool.QueryRow(ctx, `
		SELECT id, price_eur_per_kwh, valid_from, valid_to, description
		FROM electricity_price_config
		WHERE valid_to IS NULL OR valid_to > $1
		ORDER BY valid_from DESC
		LIMIT 1`, at).Scan(&p.ID, &p.PricePerKwh, &p.ValidFrom, &p.ValidTo, &desc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("query "+tablePriceConfig, err)
	}
	if desc != nil {
		p.Description = *desc
	}
	return &p, nil
}

func (db *Database) InsertPrice(ctx context.Context, p *model.PriceEntry) (int64, error) {
	var id int64
	err := db.pool.QueryRow(ctx, `
		INSERT INTO electricity_price_config (price_eur_per_kwh, valid_from, valid_to, description, time)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id`, p.PricePerKwh, p.ValidFrom, p.ValidTo, nullString(p.Description)).Scan(&id)
	return id, wrap("insert "+tablePriceConfig, err)
}

// SeedPrice inserts an open-ended entry when no active one exists. It
// reports whether a row was inserted.
func (db *Database) SeedPrice(ctx context.Context, price float64, description string) (bool, error) {
	now := time.Now().UTC()
	active, err := db.ActivePrice(ctx, now)
	if err != nil {
		return false, err
	}
	if active != nil {
		return false, nil
	}
	if _, err := db.InsertPrice(ctx, &model.PriceEntry{PricePerKwh: price, ValidFrom: now, Description: description}); err != nil {
		return false, err
	}
	return true, nil
}
