package hrest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"ledgerpay-service/internal/metrics"
	"ledgerpay-service/internal/usecase"
	"ledgerpay-service/pkg/response"
	"ledgerpay-service/pkg/utils"
	"ledgerpay-service/pkg/xerrors"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// headerIdempotencyKey carries the client-supplied ticket on every
// money-moving call.
const headerIdempotencyKey = "Idempotency-Key"

type LedgerRestHandler struct {
	walletUC *usecase.WalletUsecase
	ledgerUC *usecase.LedgerUsecase
	idemUC   *usecase.IdempotencyUsecase
	auth     *AuthMiddleware
	log      *zap.Logger
}

func NewLedgerRestHandler(
	walletUC *usecase.WalletUsecase,
	ledgerUC *usecase.LedgerUsecase,
	idemUC *usecase.IdempotencyUsecase,
	auth *AuthMiddleware,
	log *zap.Logger,
) *LedgerRestHandler {
	return &LedgerRestHandler{
		walletUC: walletUC,
		ledgerUC: ledgerUC,
		idemUC:   idemUC,
		auth:     auth,
		log:      log,
	}
}

func (h *LedgerRestHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/wallets", func(r chi.Router) {
		r.Use(h.auth.Authenticate)

		r.Post("/", h.CreateWallet)
		r.Get("/{accountID}/balance", h.GetBalance)
		r.Get("/{accountID}/transactions", h.GetHistory)

		r.Post("/deposit", h.Deposit)
		r.Post("/withdraw", h.Withdraw)
		r.Post("/transfer", h.Transfer)
		r.Post("/refund", h.Refund)
	})

	return r
}

// ===============================
// WALLET / READ SURFACE
// ===============================

func (h *LedgerRestHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok || userID == "" {
		writeError(w, xerrors.ErrUnauthorized)
		return
	}

	wallet, err := h.walletUC.CreateWallet(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, wallet)
}

func (h *LedgerRestHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if !utils.ValidID(accountID) {
		writeError(w, xerrors.ErrValidation)
		return
	}
	if !h.requireOwner(w, r, accountID) {
		return
	}

	balance, err := h.walletUC.GetBalance(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{
		"account_id": accountID,
		"balance":    balance.String(),
	})
}

func (h *LedgerRestHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if !utils.ValidID(accountID) {
		writeError(w, xerrors.ErrValidation)
		return
	}
	if !h.requireOwner(w, r, accountID) {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	page, err := h.walletUC.GetHistory(r.Context(), accountID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, page)
}

// requireOwner enforces the ownership contract for read access: only the
// wallet's owner may see balances and history.
func (h *LedgerRestHandler) requireOwner(w http.ResponseWriter, r *http.Request, accountID string) bool {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, xerrors.ErrUnauthorized)
		return false
	}

	owner, err := h.walletUC.IsOwner(r.Context(), accountID, userID)
	if err != nil {
		writeError(w, err)
		return false
	}
	if !owner {
		writeError(w, xerrors.ErrUnauthorized)
		return false
	}
	return true
}

// ===============================
// MONEY MOVEMENTS
// ===============================

type amountJSON struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type transferJSON struct {
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
}

type refundJSON struct {
	OriginalTransactionID string `json:"original_transaction_id"`
}

func (h *LedgerRestHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var in amountJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, xerrors.ErrValidation)
		return
	}
	if !utils.ValidID(in.AccountID) || in.Amount.LessThanOrEqual(decimal.Zero) {
		writeError(w, xerrors.ErrValidation)
		return
	}

	h.executeIdempotent(w, r, func(ticket string) (any, error) {
		return h.ledgerUC.Deposit(r.Context(), in.AccountID, in.Amount, ticket)
	})
}

func (h *LedgerRestHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var in amountJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, xerrors.ErrValidation)
		return
	}
	if !utils.ValidID(in.AccountID) || in.Amount.LessThanOrEqual(decimal.Zero) {
		writeError(w, xerrors.ErrValidation)
		return
	}

	h.executeIdempotent(w, r, func(ticket string) (any, error) {
		return h.ledgerUC.Withdraw(r.Context(), in.AccountID, in.Amount, ticket)
	})
}

func (h *LedgerRestHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var in transferJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, xerrors.ErrValidation)
		return
	}
	if !utils.ValidID(in.FromAccountID) || !utils.ValidID(in.ToAccountID) || in.Amount.LessThanOrEqual(decimal.Zero) {
		writeError(w, xerrors.ErrValidation)
		return
	}
	if in.FromAccountID == in.ToAccountID {
		writeError(w, xerrors.ErrValidation)
		return
	}

	h.executeIdempotent(w, r, func(ticket string) (any, error) {
		return h.ledgerUC.Transfer(r.Context(), in.FromAccountID, in.ToAccountID, in.Amount, ticket)
	})
}

func (h *LedgerRestHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var in refundJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, xerrors.ErrValidation)
		return
	}
	if !utils.ValidID(in.OriginalTransactionID) {
		writeError(w, xerrors.ErrValidation)
		return
	}

	h.executeIdempotent(w, r, func(ticket string) (any, error) {
		return h.ledgerUC.Refund(r.Context(), in.OriginalTransactionID, ticket)
	})
}

// executeIdempotent wraps a ledger operation in the idempotency protocol:
// replay or conflict short-circuits before the operation runs; on success
// the response is cached as an explicit post-success step, then sent. The
// durable receipt was already committed inside the operation's unit of
// work, so the bytes written here match any later replay exactly.
func (h *LedgerRestHandler) executeIdempotent(w http.ResponseWriter, r *http.Request, op func(ticket string) (any, error)) {
	ticket := r.Header.Get(headerIdempotencyKey)
	if ticket == "" {
		writeError(w, xerrors.ErrTicketRequired)
		return
	}

	replay, err := h.idemUC.Begin(r.Context(), ticket)
	if err != nil {
		writeError(w, err)
		return
	}
	if replay != nil {
		response.Raw(w, replay.Status, replay.Body)
		return
	}

	result, err := op(ticket)
	if err != nil {
		// Nothing durable was written; the short-TTL claim expires on its
		// own and the ticket becomes retryable.
		writeError(w, err)
		return
	}

	body, err := response.Payload(result)
	if err != nil {
		h.log.Error("failed to marshal response", zap.Error(err))
		writeError(w, xerrors.ErrInternalServer)
		return
	}
	h.idemUC.Finish(r.Context(), ticket, http.StatusOK, body)
	response.Raw(w, http.StatusOK, body)
}
