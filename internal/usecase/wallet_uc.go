package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ledgerpay-service/internal/domain"
	"ledgerpay-service/internal/repository"
	"ledgerpay-service/pkg/utils"
	"ledgerpay-service/pkg/xerrors"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	historyCacheTTL  = 1 * time.Minute
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// WalletUsecase covers the account directory and the read-only surface:
// wallet creation, derived balances, transaction history.
type WalletUsecase struct {
	walletRepo      repository.WalletRepository
	entryRepo       repository.EntryRepository
	transactionRepo repository.TransactionRepository
	redisClient     *redis.Client
	idgen           *utils.IDGenerator
	log             *zap.Logger
}

func NewWalletUsecase(
	walletRepo repository.WalletRepository,
	entryRepo repository.EntryRepository,
	transactionRepo repository.TransactionRepository,
	redisClient *redis.Client,
	idgen *utils.IDGenerator,
	log *zap.Logger,
) *WalletUsecase {
	return &WalletUsecase{
		walletRepo:      walletRepo,
		entryRepo:       entryRepo,
		transactionRepo: transactionRepo,
		redisClient:     redisClient,
		idgen:           idgen,
		log:             log,
	}
}

// CreateWallet creates the user's wallet with one default AVAILABLE account.
// One wallet per user: a second call for the same user fails with
// xerrors.ErrWalletExists.
func (uc *WalletUsecase) CreateWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if userID == "" {
		return nil, xerrors.ErrValidation
	}

	w := &domain.Wallet{
		ID:     uc.idgen.NewWalletID(),
		UserID: userID,
		Accounts: []*domain.LedgerAccount{
			{
				ID:   uc.idgen.NewAccountID(),
				Type: domain.AccountTypeAvailable,
			},
		},
	}
	if err := uc.walletRepo.Create(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// GetBalance folds the account's entry log into a balance. An account with
// no entries has balance zero. Balance is never cached or stored: the entry
// log is the single source of truth.
func (uc *WalletUsecase) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	if _, err := uc.walletRepo.GetAccount(ctx, accountID); err != nil {
		return decimal.Zero, err
	}
	return uc.entryRepo.SumByAccount(ctx, accountID)
}

// GetHistory pages through the account's transactions, newest first. Pages
// are cached briefly; history is append-only so a short TTL only delays the
// newest items, never corrupts older pages.
func (uc *WalletUsecase) GetHistory(ctx context.Context, accountID string, limit, offset int) (*domain.TransactionPage, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	if _, err := uc.walletRepo.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("history:%s:%d:%d", accountID, limit, offset)
	if uc.redisClient != nil {
		if val, err := uc.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var page domain.TransactionPage
			if jsonErr := json.Unmarshal([]byte(val), &page); jsonErr == nil {
				return &page, nil
			}
		}
	}

	items, total, err := uc.transactionRepo.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, err
	}

	page := &domain.TransactionPage{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}

	if uc.redisClient != nil {
		if data, err := json.Marshal(page); err == nil {
			if err := uc.redisClient.Set(ctx, cacheKey, data, historyCacheTTL).Err(); err != nil {
				uc.log.Debug("failed to cache history page", zap.Error(err))
			}
		}
	}

	return page, nil
}

// IsOwner reports whether the authenticated user owns the account.
func (uc *WalletUsecase) IsOwner(ctx context.Context, accountID, userID string) (bool, error) {
	return uc.walletRepo.IsOwner(ctx, accountID, userID)
}
