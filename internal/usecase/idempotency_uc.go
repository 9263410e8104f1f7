package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ledgerpay-service/internal/domain"
	"ledgerpay-service/internal/repository"
	"ledgerpay-service/pkg/xerrors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	idempotencyKeyPrefix = "idempotency:"

	// The in-flight claim stores the processing status itself as the cache
	// value; a finalized ticket stores a marshalled Replay instead.
	processingSentinel = string(domain.IdempotencyStatusProcessing)
)

// Replay is a previously recorded response, returned verbatim instead of
// re-executing the operation.
type Replay struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// IdempotencyUsecase coordinates the two-tier deduplication protocol: a fast
// volatile cache in Redis in front of the durable record log in Postgres.
//
// Per ticket: a finalized cached response replays immediately; a
// "processing" sentinel means a concurrent attempt is in flight (Conflict);
// a fast-cache miss falls through to the durable log and repopulates the
// cache; a miss everywhere claims the ticket with a short-TTL sentinel and
// lets the operation run. The short TTL bounds how long a crashed in-flight
// attempt can block retries.
type IdempotencyUsecase struct {
	redisClient   *redis.Client
	repo          repository.IdempotencyRepository
	processingTTL time.Duration
	responseTTL   time.Duration
	log           *zap.Logger
}

func NewIdempotencyUsecase(
	redisClient *redis.Client,
	repo repository.IdempotencyRepository,
	processingTTL, responseTTL time.Duration,
	log *zap.Logger,
) *IdempotencyUsecase {
	return &IdempotencyUsecase{
		redisClient:   redisClient,
		repo:          repo,
		processingTTL: processingTTL,
		responseTTL:   responseTTL,
		log:           log,
	}
}

// Begin runs the lookup-or-claim half of the protocol. It returns a non-nil
// Replay when the ticket has already completed, xerrors.ErrConflict when a
// duplicate is in flight, and (nil, nil) when the ticket was claimed and the
// caller should execute the operation.
func (uc *IdempotencyUsecase) Begin(ctx context.Context, ticket string) (*Replay, error) {
	if ticket == "" {
		return nil, xerrors.ErrTicketRequired
	}
	key := idempotencyKeyPrefix + ticket

	val, err := uc.redisClient.Get(ctx, key).Result()
	switch {
	case err == nil:
		if val == processingSentinel {
			return nil, xerrors.ErrConflict
		}
		var replay Replay
		if jsonErr := json.Unmarshal([]byte(val), &replay); jsonErr == nil {
			uc.log.Info("idempotent replay from fast cache", zap.String("ticket", ticket))
			return &replay, nil
		}
		// Unreadable cache value: fall through to the durable log.
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("fast cache lookup failed: %w", err)
	}

	rec, err := uc.repo.Get(ctx, ticket)
	if err == nil {
		// The fast cache lost the entry (restart, eviction); repopulate it
		// so the next replay short-circuits without touching Postgres.
		replay := &Replay{Status: rec.ResponseStatus, Body: rec.ResponseBody}
		uc.cacheReplay(ctx, key, replay)
		uc.log.Info("idempotent replay from durable log", zap.String("ticket", ticket))
		return replay, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	// First sight: claim the ticket atomically. SETNX losing the race means
	// another worker claimed it between our lookup and now.
	claimed, err := uc.redisClient.SetNX(ctx, key, processingSentinel, uc.processingTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim ticket: %w", err)
	}
	if !claimed {
		return nil, xerrors.ErrConflict
	}
	return nil, nil
}

// Finish caches the finalized response under a long TTL. The durable record
// was already committed inside the operation's unit of work; this only
// refreshes the fast tier, so a failure here is logged and absorbed.
func (uc *IdempotencyUsecase) Finish(ctx context.Context, ticket string, status int, body []byte) {
	uc.cacheReplay(ctx, idempotencyKeyPrefix+ticket, &Replay{Status: status, Body: body})
}

func (uc *IdempotencyUsecase) cacheReplay(ctx context.Context, key string, replay *Replay) {
	data, err := json.Marshal(replay)
	if err != nil {
		uc.log.Warn("failed to marshal cached response", zap.Error(err))
		return
	}
	if err := uc.redisClient.Set(ctx, key, data, uc.responseTTL).Err(); err != nil {
		uc.log.Warn("failed to write fast cache", zap.Error(err))
	}
}
