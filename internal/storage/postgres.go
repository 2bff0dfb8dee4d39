// Package storage holds the external persistence collaborators: the
// Postgres listing store and the Redis recently-harvested cache.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/listing-harvester/internal/domain"
)

// PostgresStore persists listing records and per-target harvest status.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// UpsertListing saves one record within a single transaction, keyed by
// (site, listing_id). On conflict every field is replaced, and the photo
// rows are deleted and reinserted so the stored set always mirrors the
// latest harvest.
func (s *PostgresStore) UpsertListing(ctx context.Context, site string, rec *domain.ListingRecord) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var listingPK int64
	err = tx.QueryRow(ctx,
		`INSERT INTO listings (site, listing_id, title, price, location, url, posted_date, state, city, description, phone_number, harvested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (site, listing_id) DO UPDATE SET
		   title = EXCLUDED.title,
		   price = EXCLUDED.price,
		   location = EXCLUDED.location,
		   url = EXCLUDED.url,
		   posted_date = EXCLUDED.posted_date,
		   state = EXCLUDED.state,
		   city = EXCLUDED.city,
		   description = EXCLUDED.description,
		   phone_number = EXCLUDED.phone_number,
		   harvested_at = EXCLUDED.harvested_at
		 RETURNING id`,
		site, rec.ListingID, rec.Title, rec.Price, rec.Location, rec.URL,
		rec.PostedDate, rec.State, rec.City, rec.Description, rec.PhoneNumber,
		rec.HarvestedAt,
	).Scan(&listingPK)
	if err != nil {
		return err
	}

	// Full replace, never merge: the new photo set supersedes the old one.
	if _, err := tx.Exec(ctx, `DELETE FROM listing_photos WHERE listing_pk = $1`, listingPK); err != nil {
		return err
	}
	if len(rec.PhotoURLs) > 0 {
		batch := &pgx.Batch{}
		for i, u := range rec.PhotoURLs {
			batch.Queue(`INSERT INTO listing_photos (listing_pk, position, url) VALUES ($1, $2, $3)`,
				listingPK, i, u)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// SaveTargetStatus upserts the per-target harvest outcome.
func (s *PostgresStore) SaveTargetStatus(ctx context.Context, res domain.TargetResult) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO target_status (site, state, status, listing_count, error, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (site) DO UPDATE SET
		   state = EXCLUDED.state,
		   status = EXCLUDED.status,
		   listing_count = EXCLUDED.listing_count,
		   error = EXCLUDED.error,
		   completed_at = EXCLUDED.completed_at`,
		res.Domain, res.State, string(res.Status), res.Count, res.Error, res.CompletedAt)
	return err
}

// ListListings reads back stored records, optionally filtered by site and a
// free-text title search, newest first.
func (s *PostgresStore) ListListings(ctx context.Context, site, titleQuery string, limit int) ([]domain.ListingRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT listing_id, title, price, location, url, posted_date, state, city, description, phone_number, harvested_at
		 FROM listings
		 WHERE ($1 = '' OR site = $1)
		   AND ($2 = '' OR title ILIKE '%' || $2 || '%')
		 ORDER BY harvested_at DESC
		 LIMIT $3`,
		site, titleQuery, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ListingRecord
	for rows.Next() {
		var rec domain.ListingRecord
		if err := rows.Scan(
			&rec.ListingID, &rec.Title, &rec.Price, &rec.Location, &rec.URL,
			&rec.PostedDate, &rec.State, &rec.City, &rec.Description,
			&rec.PhoneNumber, &rec.HarvestedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TargetStatuses reads back the latest per-target outcomes.
func (s *PostgresStore) TargetStatuses(ctx context.Context) ([]domain.TargetResult, error) {
	rows, err := s.db.Query(ctx,
		`SELECT site, state, status, listing_count, error, completed_at
		 FROM target_status ORDER BY site`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TargetResult
	for rows.Next() {
		var res domain.TargetResult
		var status string
		if err := rows.Scan(&res.Domain, &res.State, &status, &res.Count, &res.Error, &res.CompletedAt); err != nil {
			return nil, err
		}
		res.Status = domain.DomainStatus(status)
		out = append(out, res)
	}
	return out, rows.Err()
}

// SaveRun persists every record and status of a finished (or partial) run.
func (s *PostgresStore) SaveRun(ctx context.Context, run *domain.RunResult) error {
	for _, res := range run.Results {
		for i := range res.Listings {
			if err := s.UpsertListing(ctx, res.Domain, &res.Listings[i]); err != nil {
				return fmt.Errorf("saving listing %s/%s: %w", res.Domain, res.Listings[i].ListingID, err)
			}
		}
		if err := s.SaveTargetStatus(ctx, res); err != nil {
			return fmt.Errorf("saving status for %s: %w", res.Domain, err)
		}
	}
	return nil
}
