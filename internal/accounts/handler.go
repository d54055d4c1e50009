package accounts

import (
	"errors"
	"net/http"
	"strings"

	"mx-orderdesk/internal/httputil"
	"mx-orderdesk/internal/types"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	out, err := h.svc.ListByUser(r.Context(), userID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error", Reason: "internal"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, userID, accountID string) {
	kind := types.AccountKind(strings.ToLower(r.URL.Query().Get("account_kind")))
	if !kind.Valid() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid account_kind", Reason: "validation", Fields: []string{"account_kind"}})
		return
	}
	if err := h.svc.Authorize(r.Context(), userID, kind, accountID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error(), Reason: "not_found"})
			return
		}
		httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: err.Error(), Reason: "forbidden"})
		return
	}
	acct, err := h.svc.Get(r.Context(), kind, accountID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error", Reason: "internal"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acct)
}
