package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/galleryops/internal/models"
)

// PostgresStore keeps transaction records in the tx_records table.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &PostgresStore{db: pool}
	if err := s.ensureSchema(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tx_records (
			id               BIGSERIAL PRIMARY KEY,
			operation        TEXT NOT NULL,
			token_id         BIGINT NOT NULL DEFAULT 0,
			submitter        TEXT NOT NULL,
			status           TEXT NOT NULL,
			ledger_reference TEXT NOT NULL DEFAULT '',
			reason           TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS tx_records_ledger_reference_idx
			ON tx_records (ledger_reference);
	`)
	if err != nil {
		return fmt.Errorf("schema setup failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec *models.TxRecord) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO tx_records (operation, token_id, submitter, status, ledger_reference, reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		string(rec.Op), rec.TokenID, rec.Submitter, string(rec.Status), rec.LedgerRef, rec.Reason, rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("record insert failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, rec *models.TxRecord) error {
	_, err := s.db.Exec(ctx,
		`UPDATE tx_records
		 SET token_id = $1, status = $2, ledger_reference = $3, reason = $4, updated_at = $5
		 WHERE id = $6`,
		rec.TokenID, string(rec.Status), rec.LedgerRef, rec.Reason, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("record update failed: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*models.TxRecord, error) {
	var rec models.TxRecord
	var op, status string
	err := row.Scan(&rec.ID, &op, &rec.TokenID, &rec.Submitter, &status, &rec.LedgerRef, &rec.Reason, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Op = models.OpType(op)
	rec.Status = models.TxStatus(status)
	return &rec, nil
}

func (s *PostgresStore) GetByRef(ctx context.Context, ref string) (*models.TxRecord, error) {
	rec, err := scanRecord(s.db.QueryRow(ctx,
		`SELECT id, operation, token_id, submitter, status, ledger_reference, reason, created_at, updated_at
		 FROM tx_records WHERE ledger_reference = $1`,
		ref,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]models.TxRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, operation, token_id, submitter, status, ledger_reference, reason, created_at, updated_at
		 FROM tx_records ORDER BY id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.TxRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM tx_records WHERE updated_at < $1 AND status <> $2`,
		cutoff, string(models.StatusPending),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
