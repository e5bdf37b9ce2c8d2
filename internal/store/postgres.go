package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS payment_transactions (
    id                TEXT PRIMARY KEY,
    transaction_hash  TEXT NOT NULL UNIQUE,
    status            TEXT NOT NULL,
    amount            TEXT NOT NULL,
    payment_method    TEXT NOT NULL,
    recipient_address TEXT NOT NULL,
    from_address      TEXT NOT NULL DEFAULT '',
    settlement_tx     TEXT NOT NULL DEFAULT '',
    error             TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS payment_transactions_created_at_idx ON payment_transactions (created_at DESC);
`

const selectColumns = `id, transaction_hash, status, amount, payment_method, recipient_address, from_address, settlement_tx, error, created_at, updated_at`

type Postgres struct{ db *pgxpool.Pool }

func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &Postgres{db: pool}, nil
}

// EnsureSchema creates the transactions table when it is missing.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

func (s *Postgres) Create(ctx context.Context, rec *TransactionRecord) error {
	row := s.db.QueryRow(ctx, `
        INSERT INTO payment_transactions (id, transaction_hash, status, amount, payment_method, recipient_address, from_address, settlement_tx, error)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (transaction_hash) DO NOTHING
        RETURNING created_at, updated_at
    `, rec.ID, rec.TransactionHash, string(rec.Status), rec.Amount, rec.PaymentMethod, rec.RecipientAddress, rec.FromAddress, rec.SettlementTx, rec.Error)

	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, hash string) (*TransactionRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM payment_transactions WHERE transaction_hash=$1`, hash)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *Postgres) Transition(ctx context.Context, hash string, to Status, update Update) (*TransactionRecord, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM payment_transactions WHERE transaction_hash=$1 FOR UPDATE`, hash).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := checkTransition(Status(current), to); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
        UPDATE payment_transactions SET
            status=$2,
            from_address=COALESCE(NULLIF($3, ''), from_address),
            settlement_tx=COALESCE(NULLIF($4, ''), settlement_tx),
            error=COALESCE(NULLIF($5, ''), error),
            updated_at=now()
        WHERE transaction_hash=$1
        RETURNING `+selectColumns, hash, string(to), update.FromAddress, update.SettlementTx, update.Error)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Postgres) List(ctx context.Context, limit int) ([]TransactionRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT `+selectColumns+` FROM payment_transactions ORDER BY created_at DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TransactionRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *Postgres) Close() error {
	s.db.Close()
	return nil
}

func scanRecord(row pgx.Row) (*TransactionRecord, error) {
	var rec TransactionRecord
	var status string
	err := row.Scan(&rec.ID, &rec.TransactionHash, &status, &rec.Amount, &rec.PaymentMethod, &rec.RecipientAddress,
		&rec.FromAddress, &rec.SettlementTx, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	return &rec, nil
}
