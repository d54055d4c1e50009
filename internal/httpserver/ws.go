package httpserver

import (
	"net/http"
	"strings"
	"time"

	"mx-orderdesk/internal/accounts"
	"mx-orderdesk/internal/auth"
	"mx-orderdesk/internal/notify"
	"mx-orderdesk/internal/types"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsWriteTimeout = 10 * time.Second

// WSHandler streams order and margin updates for a single account over a
// websocket connection. Clients authenticate with a JWT passed as a query
// parameter and name the account they want events for.
type WSHandler struct {
	hub      *notify.Hub
	authSvc  *auth.Service
	account  *accounts.Service
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *notify.Hub, authSvc *auth.Service, accountSvc *accounts.Service, origin string, log *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:     hub,
		authSvc: authSvc,
		account: accountSvc,
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		if strings.Contains(reqOrigin, "localhost") || strings.Contains(reqOrigin, "127.0.0.1") {
			return true
		}
	}
	return strings.EqualFold(reqOrigin, origin)
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, err := h.authSvc.ParseToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	kind := types.AccountKind(strings.ToLower(r.URL.Query().Get("account_kind")))
	accountID := r.URL.Query().Get("account_id")
	if !kind.Valid() || accountID == "" {
		http.Error(w, "missing account", http.StatusBadRequest)
		return
	}
	if err := h.account.Authorize(r.Context(), userID, kind, accountID); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	ref := notify.AccountRef{Kind: kind, ID: accountID}
	sub := h.hub.Subscribe(ref)
	defer h.hub.Unsubscribe(ref, sub)
	h.log.Info("ws connected",
		zap.String("conn_id", connID),
		zap.String("account_id", accountID),
		zap.String("account_kind", string(kind)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				h.log.Debug("ws write failed", zap.String("conn_id", connID), zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}
