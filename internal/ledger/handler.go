package ledger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	core "github.com/frahmantamala/tutor-billing/internal"
	"github.com/frahmantamala/tutor-billing/internal/transport"
	"github.com/frahmantamala/tutor-billing/pkg/logger"
)

type ServiceAPI interface {
	RecordTransaction(ctx context.Context, payerID int64, dto *RecordTransactionDTO) (*Transaction, error)
	SettleByExternalID(ctx context.Context, externalID, outcome, reason string, processorResponse json.RawMessage) (*Transaction, error)
	GetTransaction(payerID, transactionID int64, isAdmin bool) (*Transaction, error)
	History(payerID int64, q HistoryQuery) (*HistoryResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto RecordTransactionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("RecordTransaction: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	txn, err := h.Service.RecordTransaction(r.Context(), actor.ID, &dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, txn)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	transactionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid transaction ID")
		return
	}

	txn, err := h.Service.GetTransaction(actor.ID, transactionID, actor.IsAdmin())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, txn)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := core.ActorFromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	q := HistoryQuery{
		TxnType: r.URL.Query().Get("txn_type"),
		Status:  r.URL.Query().Get("status"),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		q.Limit, _ = strconv.Atoi(limit)
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		q.Offset, _ = strconv.Atoi(offset)
	}

	history, err := h.Service.History(actor.ID, q)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, history)
}

// settlementCallback mirrors the processor's webhook payload.
type settlementCallback struct {
	IdempotencyKey string `json:"idempotency_key"`
	Outcome        string `json:"outcome"`
	Reason         string `json:"reason,omitempty"`
	ProviderRef    string `json:"provider_ref,omitempty"`
	AmountCents    int64  `json:"amount_cents"`
}

// SettlementWebhook receives capture outcomes from the processor. It
// always answers 200 for replays so the processor stops retrying.
func (h *Handler) SettlementWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "unable to read webhook body")
		return
	}

	var callback settlementCallback
	if err := json.Unmarshal(body, &callback); err != nil {
		h.Logger.Error("SettlementWebhook: invalid payload", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}
	if callback.IdempotencyKey == "" || callback.Outcome == "" {
		h.WriteError(w, http.StatusBadRequest, "idempotency_key and outcome are required")
		return
	}

	h.Logger.Info("settlement webhook received",
		"idempotency_key", callback.IdempotencyKey,
		"outcome", callback.Outcome)

	txn, err := h.Service.SettleByExternalID(r.Context(), callback.IdempotencyKey, callback.Outcome, callback.Reason, body)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transaction_id": txn.ID,
		"status":         txn.Status,
	})
}
