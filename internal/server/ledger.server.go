package server

import (
	"context"
	"net/http"

	"ledgerpay-service/internal/config"
	hrest "ledgerpay-service/internal/handler/rest"
	"ledgerpay-service/internal/pub"
	"ledgerpay-service/internal/repository"
	"ledgerpay-service/internal/usecase"
	"ledgerpay-service/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Server owns the process-wide resource handles (database pool, redis
// client, kafka writer) and the wired request pipeline. Everything below it
// receives its dependencies by injection; there are no package-level
// singletons.
type Server struct {
	httpServer *http.Server
	rdb        *redis.Client
	events     *pub.TransactionEventPublisher
	log        *zap.Logger
}

func New(cfg config.AppConfig, log *zap.Logger) (*Server, error) {
	// --- DB connection ---
	dbpool, err := config.ConnectDB()
	if err != nil {
		return nil, err
	}

	// --- Redis client ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})

	idgen := utils.NewIDGenerator()
	events := pub.NewTransactionEventPublisher(rdb, cfg.KafkaBrokers)

	// --- Repositories ---
	walletRepo := repository.NewWalletRepo(dbpool)
	entryRepo := repository.NewEntryRepo(dbpool, cfg.LockTimeout)
	transactionRepo := repository.NewTransactionRepo(dbpool)
	idempotencyRepo := repository.NewIdempotencyRepo(dbpool)

	// --- Usecases ---
	walletUC := usecase.NewWalletUsecase(walletRepo, entryRepo, transactionRepo, rdb, idgen, log)
	ledgerUC := usecase.NewLedgerUsecase(transactionRepo, entryRepo, idempotencyRepo, idgen, events, log)
	idemUC := usecase.NewIdempotencyUsecase(rdb, idempotencyRepo, cfg.ProcessingTTL, cfg.ResponseTTL, log)

	// --- HTTP handler ---
	auth := hrest.NewAuthMiddleware(cfg.JWTSecret)
	handler := hrest.NewLedgerRestHandler(walletUC, ledgerUC, idemUC, auth, log)

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: handler.Routes(),
		},
		rdb:    rdb,
		events: events,
		log:    log,
	}, nil
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info("ledger HTTP server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and closes resource handles.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if cerr := s.events.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := s.rdb.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
