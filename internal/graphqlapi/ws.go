package graphqlapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	graphql "github.com/graph-gophers/graphql-go"

	"github.com/goran-ethernal/ChainIndexor/internal/logger"
)

// graphql-ws (subscriptions-transport-ws) message types. Only the subset the
// Watcher's RemoteIndexerClient actually speaks is implemented: connection
// init/ack, start/stop for a subscription, and the data/error/complete
// replies.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgStart          = "start"
	msgStop           = "stop"
	msgData           = "data"
	msgError          = "error"
	msgComplete       = "complete"
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type startPayload struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
	Subprotocols:    []string{"graphql-ws"},
}

// SubscriptionHandler upgrades to a websocket and speaks graphql-ws against
// schema, running each "start" message's subscription concurrently until the
// client sends "stop" or disconnects.
type SubscriptionHandler struct {
	Schema *graphql.Schema
	Log    *logger.Logger
}

func (h *SubscriptionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Errorw("graphql-ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan wsMessage, 16)
	go h.writePump(conn, send)

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	active := make(map[string]context.CancelFunc)
	defer func() {
		for _, stop := range active {
			stop()
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case msgConnectionInit:
			send <- wsMessage{Type: msgConnectionAck}

		case msgStart:
			var payload startPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				send <- wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload(err)}
				continue
			}
			subCtx, stop := context.WithCancel(ctx)
			active[msg.ID] = stop
			go h.runSubscription(subCtx, msg.ID, payload, send)

		case msgStop:
			if stop, ok := active[msg.ID]; ok {
				stop()
				delete(active, msg.ID)
			}

		default:
			// unrecognized message types are ignored rather than closing the connection
		}
	}
}

func (h *SubscriptionHandler) runSubscription(ctx context.Context, id string, payload startPayload, send chan<- wsMessage) {
	responses, err := h.Schema.Subscribe(ctx, payload.Query, payload.OperationName, payload.Variables)
	if err != nil {
		send <- wsMessage{ID: id, Type: msgError, Payload: errorPayload(err)}
		return
	}

	for resp := range responses {
		if resp == nil {
			continue
		}
		body, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		select {
		case send <- wsMessage{ID: id, Type: msgData, Payload: body}:
		case <-ctx.Done():
			return
		}
	}

	select {
	case send <- wsMessage{ID: id, Type: msgComplete}:
	case <-ctx.Done():
	}
}

func (h *SubscriptionHandler) writePump(conn *websocket.Conn, send <-chan wsMessage) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func errorPayload(err error) json.RawMessage {
	body, _ := json.Marshal(struct {
		Message string `json:"message"`
	}{Message: err.Error()})
	return body
}
