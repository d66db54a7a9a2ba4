package snapshots

import (
	"context"
	"errors"
	"fmt"

	"github.com/2beens/gymstats-predictor/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

// PsqlStore keeps snapshots in the model_snapshot table:
//
//	CREATE TABLE model_snapshot (
//	    key        VARCHAR PRIMARY KEY,
//	    data       JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PsqlStore struct {
	db *pgxpool.Pool
}

func NewPsqlStore(db *pgxpool.Pool) *PsqlStore {
	return &PsqlStore{
		db: db,
	}
}

func (s *PsqlStore) Save(ctx context.Context, key string, blob []byte) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.snapshots.save")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("key", key))
	span.SetAttributes(attribute.Int("size", len(blob)))

	tag, err := s.db.Exec(ctx, `
		INSERT INTO model_snapshot (key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
			SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at;
	`, key, blob)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upsert snapshot %s: no rows affected", key)
	}
	return nil
}

func (s *PsqlStore) Load(ctx context.Context, key string) (_ []byte, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.snapshots.load")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("key", key))

	var blob []byte
	err = s.db.
		QueryRow(ctx, `
			SELECT data
			FROM model_snapshot
			WHERE key = $1
		`, key).
		Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot %s: %w", key, err)
	}
	return blob, nil
}
