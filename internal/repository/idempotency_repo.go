package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgerpay-service/internal/domain"
	"ledgerpay-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyRepository is the durable tier of the idempotency protocol. The
// fast tier lives in Redis (see usecase.IdempotencyUsecase); this one
// survives cache loss and process crashes.
type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	// Save inserts the finalized record inside the caller's transaction so
	// the receipt and the ledger mutation commit or roll back together.
	Save(ctx context.Context, tx pgx.Tx, rec *domain.IdempotencyRecord) error
}

type idempotencyRepo struct {
	db *pgxpool.Pool
}

func NewIdempotencyRepo(db *pgxpool.Pool) IdempotencyRepository {
	return &idempotencyRepo{db: db}
}

func (r *idempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	var body string
	err := r.db.QueryRow(ctx, `
		SELECT key, status, response_status, response_body, created_at, expires_at
		FROM idempotency_records
		WHERE key = $1
	`, key).Scan(&rec.Key, &rec.Status, &rec.ResponseStatus, &body, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}
	rec.ResponseBody = []byte(body)
	return &rec, nil
}

func (r *idempotencyRepo) Save(ctx context.Context, tx pgx.Tx, rec *domain.IdempotencyRecord) error {
	if tx == nil {
		return errors.New("transaction cannot be nil")
	}

	// The body column is text so the recorded bytes survive unchanged; a
	// replay must return exactly what the original caller received.
	err := tx.QueryRow(ctx, `
		INSERT INTO idempotency_records (key, status, response_status, response_body, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, rec.Key, rec.Status, rec.ResponseStatus, string(rec.ResponseBody), time.Now().UTC(), rec.ExpiresAt).Scan(&rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == xerrors.PGCodeUniqueViolation {
			return xerrors.ErrConflict
		}
		return fmt.Errorf("failed to save idempotency record: %w", err)
	}
	return nil
}
