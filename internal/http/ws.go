package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"GiftCardPay/internal/logger"
	"GiftCardPay/internal/payments"
)

const wsWriteTimeout = 10 * time.Second

type watchMessage struct {
	checkResponse
	Error string `json:"error,omitempty"`
}

// WatchPayment streams check results over a websocket until the order is confirmed,
// the order cannot be paid or the client disconnects.
func (h *Handler) WatchPayment(w http.ResponseWriter, r *http.Request) {
	const op = "http.Handler.WatchPayment"
	orderID := chi.URLParam(r, "orderId")
	log := h.log.With(slog.String("op", op), slog.String("order_id", orderID))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", logger.Err(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client never sends anything we act on; a read error means it left.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.watchEvery)
	defer ticker.Stop()

	for {
		st, err := h.Payments.Check(ctx, orderID)
		if ctx.Err() != nil {
			return
		}

		msg := watchMessage{checkResponse: toCheckResponse(st)}
		terminal := st.Kind == payments.Confirmed
		if err != nil {
			status, text := errorStatus(err)
			msg = watchMessage{checkResponse: checkResponse{Status: "error"}, Error: text}
			// Server-side failures are retried on the next tick.
			terminal = status < http.StatusInternalServerError
			if !terminal {
				log.Warn("check failed", logger.Err(err))
			}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if werr := conn.WriteJSON(msg); werr != nil {
			log.Debug("websocket write failed", logger.Err(werr))
			return
		}

		if terminal {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
