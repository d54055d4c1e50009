package orders

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"mx-orderdesk/internal/accounts"
	"mx-orderdesk/internal/engine"
	"mx-orderdesk/internal/httputil"
	"mx-orderdesk/internal/types"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type placeOrderRequest struct {
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Price          string `json:"price"`
	Qty            string `json:"qty"`
	AccountID      string `json:"account_id"`
	AccountKind    string `json:"account_kind"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request, userID string) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error(), Reason: "validation"})
		return
	}
	price, _ := decimal.NewFromString(req.Price)
	qty, _ := decimal.NewFromString(req.Qty)
	res, err := h.svc.Place(r.Context(), PlaceRequest{
		UserID:         userID,
		AccountID:      req.AccountID,
		AccountKind:    types.AccountKind(strings.ToLower(req.AccountKind)),
		Symbol:         strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Side:           types.OrderSide(strings.ToUpper(req.Side)),
		Price:          price,
		Qty:            qty,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

type closeOrderRequest struct {
	OrderID        string `json:"order_id"`
	AccountID      string `json:"account_id"`
	AccountKind    string `json:"account_kind"`
	ClosePrice     string `json:"close_price"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request, userID string) {
	var req closeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error(), Reason: "validation"})
		return
	}
	var closePrice *decimal.Decimal
	if req.ClosePrice != "" {
		p, err := decimal.NewFromString(req.ClosePrice)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid close_price", Reason: "validation", Fields: []string{"close_price"}})
			return
		}
		closePrice = &p
	}
	res, err := h.svc.CloseOrder(r.Context(), CloseRequest{
		UserID:         userID,
		AccountID:      req.AccountID,
		AccountKind:    types.AccountKind(strings.ToLower(req.AccountKind)),
		OrderID:        req.OrderID,
		ClosePrice:     closePrice,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type attachTriggerRequest struct {
	OrderID        string `json:"order_id"`
	AccountID      string `json:"account_id"`
	AccountKind    string `json:"account_kind"`
	TriggerPrice   string `json:"trigger_price"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) AttachStopLoss(w http.ResponseWriter, r *http.Request, userID string) {
	h.attach(w, r, userID, TriggerStopLoss)
}

func (h *Handler) AttachTakeProfit(w http.ResponseWriter, r *http.Request, userID string) {
	h.attach(w, r, userID, TriggerTakeProfit)
}

func (h *Handler) attach(w http.ResponseWriter, r *http.Request, userID string, trigger TriggerKind) {
	var req attachTriggerRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error(), Reason: "validation"})
		return
	}
	triggerPrice, _ := decimal.NewFromString(req.TriggerPrice)
	res, err := h.svc.AttachTrigger(r.Context(), AttachTriggerRequest{
		UserID:         userID,
		AccountID:      req.AccountID,
		AccountKind:    types.AccountKind(strings.ToLower(req.AccountKind)),
		OrderID:        req.OrderID,
		Trigger:        trigger,
		TriggerPrice:   triggerPrice,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) OpenOrders(w http.ResponseWriter, r *http.Request, userID string) {
	kind := types.AccountKind(strings.ToLower(r.URL.Query().Get("account_kind")))
	accountID := r.URL.Query().Get("account_id")
	out, err := h.svc.ListOpen(r.Context(), userID, kind, accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request, userID string) {
	kind := types.AccountKind(strings.ToLower(r.URL.Query().Get("account_kind")))
	accountID := r.URL.Query().Get("account_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.svc.History(r.Context(), userID, kind, accountID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"orders": out})
}

// writeError maps coordinator, authorization and engine failures onto the
// response envelope. Engine errors relay the engine's message verbatim.
func writeError(w http.ResponseWriter, err error) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error:  validationErr.Error(),
			Reason: "validation",
			Fields: validationErr.Fields,
		})
		return
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		httputil.WriteJSON(w, statusErr.Status, httputil.ErrorResponse{Error: statusErr.Message, Reason: statusErr.Reason})
		return
	}
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		httputil.WriteJSON(w, engErr.Status, httputil.ErrorResponse{Error: engErr.Message, Reason: engErr.Reason})
		return
	}
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error(), Reason: "not_found"})
	case errors.Is(err, accounts.ErrNotOwner),
		errors.Is(err, accounts.ErrRoleNotEligible),
		errors.Is(err, accounts.ErrSelfTradingDisabled),
		errors.Is(err, accounts.ErrAccountDisabled):
		httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: err.Error(), Reason: "forbidden"})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error", Reason: "internal"})
	}
}
