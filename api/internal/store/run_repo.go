package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = sql.ErrNoRows

const (
	DefaultListLimit = 20
	MaxListLimit     = 200
)

// Schema creates the run history table.
const Schema = `
create table if not exists lens_runs (
  id              bigserial primary key,
  created_at      timestamptz not null default now(),
  image_hash      text not null,
  provider        text not null,
  model           text not null,
  description     text not null,
  products_json   jsonb not null default '[]'::jsonb,
  sent_to_webhook boolean not null default false,
  webhook_error   text
);
create index if not exists lens_runs_created_at_idx on lens_runs (created_at desc);
create index if not exists lens_runs_image_hash_idx on lens_runs (image_hash, provider, model);`

type RunRepo struct{ DB *sql.DB }

func NewRunRepo(db *sql.DB) *RunRepo { return &RunRepo{DB: db} }

// Run is one completed pipeline run. Products holds the JSON array returned
// to the page.
type Run struct {
	ID            int64           `json:"id"`
	CreatedAt     time.Time       `json:"createdAt"`
	ImageHash     string          `json:"imageHash"`
	Provider      string          `json:"provider"`
	Model         string          `json:"model"`
	Description   string          `json:"description"`
	Products      json.RawMessage `json:"products"`
	SentToWebhook bool            `json:"sentToWebhook"`
	WebhookError  *string         `json:"webhookError"`
}

// HashImage is the sha256 hex of the raw image bytes.
func HashImage(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (r *RunRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, Schema)
	return err
}

func (r *RunRepo) Insert(ctx context.Context, run Run) error {
	products := run.Products
	if len(products) == 0 {
		products = json.RawMessage("[]")
	}
	const q = `
insert into lens_runs (image_hash, provider, model, description, products_json, sent_to_webhook, webhook_error)
values ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.DB.ExecContext(ctx, q,
		run.ImageHash, run.Provider, run.Model, run.Description,
		[]byte(products), run.SentToWebhook, run.WebhookError,
	)
	return err
}

// ClampLimit keeps a requested page size within [1, MaxListLimit].
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > MaxListLimit:
		return MaxListLimit
	default:
		return n
	}
}

// List returns the most recent runs first.
func (r *RunRepo) List(ctx context.Context, limit int) ([]Run, error) {
	const q = `
select id, created_at, image_hash, provider, model, description, products_json, sent_to_webhook, webhook_error
from lens_runs
order by created_at desc, id desc
limit $1`
	rows, err := r.DB.QueryContext(ctx, q, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var (
			run   Run
			js    []byte
			whErr sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.CreatedAt, &run.ImageHash, &run.Provider, &run.Model,
			&run.Description, &js, &run.SentToWebhook, &whErr); err != nil {
			return nil, err
		}
		run.Products = json.RawMessage(js)
		if whErr.Valid {
			s := whErr.String
			run.WebhookError = &s
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes history rows older than the given age.
func (r *RunRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	res, err := r.DB.ExecContext(ctx, `delete from lens_runs where created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}
