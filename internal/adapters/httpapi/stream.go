package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/xvierd/stepflow/internal/services"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 5 * time.Second
)

// EventSource publishes focus flow events.
type EventSource interface {
	Subscribe(fn services.EventFunc) func()
}

type streamMessage struct {
	Type  string          `json:"type"`
	State *stateView      `json:"state,omitempty"`
	Event *services.Event `json:"event,omitempty"`
}

// Stream upgrades to a websocket that first sends the current state and then
// relays every event. Events are dropped for a client that cannot keep up.
func (h *Handler) Stream(events EventSource, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
		})
		if err != nil {
			logger.Debug().Err(err).Msg("websocket accept failed")
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusNormalClosure, "stream closed")
		}()

		// Clients never send; CloseRead handles pings and notices the close.
		ctx := conn.CloseRead(c.Request.Context())

		queue := make(chan services.Event, streamBuffer)
		unsubscribe := events.Subscribe(func(ev services.Event) {
			select {
			case queue <- ev:
			default:
			}
		})
		defer unsubscribe()

		state, err := h.provider.GetCurrentState(ctx)
		if err != nil {
			_ = conn.Close(websocket.StatusInternalError, "state unavailable")
			return
		}
		view := newStateView(state)
		if err := writeMessage(ctx, conn, streamMessage{Type: "state", State: &view}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-queue:
				if err := writeMessage(ctx, conn, streamMessage{Type: "event", Event: &ev}); err != nil {
					if !errors.Is(err, context.Canceled) {
						logger.Debug().Err(err).Msg("websocket write failed")
					}
					return
				}
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg streamMessage) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
