package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aanand-mishra/studyabroad-api/internal/chat"
	"github.com/aanand-mishra/studyabroad-api/internal/types"
)

// Event types pushed to the browser.
const (
	EventHistory      = "history"
	EventLoading      = "loading"
	EventMessage      = "message"
	EventSound        = "sound"
	EventScroll       = "scroll"
	EventToast        = "toast"
	EventSoundSetting = "sound_setting"
)

// Frame types sent by the browser.
const (
	FrameCompose     = "compose"
	FrameKey         = "key"
	FrameSend        = "send"
	FrameToggleSound = "toggle_sound"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pingInterval = 25 * time.Second
	pingTimeout  = 5 * time.Second
)

// Event is one server → browser frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Frame is one browser → server frame. Text is used by compose and send,
// Key by key.
type Frame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Key  string `json:"key,omitempty"`
}

type toastData struct {
	Level chat.ToastLevel `json:"level"`
	Text  string          `json:"text"`
}

// conn is the chat.Notifier of a WebSocket session. Events are queued and
// written by a single goroutine, so notifications never wait on the
// network.
//
// When the queue is full, sound, scroll and toast events are dropped. A
// message or history event is never dropped: the session ends instead and
// the browser reloads the history when it reconnects.
type conn struct {
	ws   *websocket.Conn
	send chan Event
	log  *slog.Logger

	overflow   context.CancelFunc
	overflowed atomic.Bool
}

func (c *conn) push(ev Event) {
	select {
	case c.send <- ev:
	default:
		if ev.Type != EventMessage && ev.Type != EventHistory {
			c.log.Warn("websocket send queue full, dropping event", slog.String("type", ev.Type))
			return
		}
		if c.overflowed.CompareAndSwap(false, true) {
			c.log.Warn("websocket send queue full, closing session", slog.String("type", ev.Type))
			c.overflow()
		}
	}
}

func (c *conn) MessageAppended(msg types.ChatMessage) { c.push(Event{Type: EventMessage, Data: msg}) }
func (c *conn) PlaySound()                            { c.push(Event{Type: EventSound}) }
func (c *conn) ScrollToLatest()                       { c.push(Event{Type: EventScroll}) }

func (c *conn) Toast(level chat.ToastLevel, text string) {
	c.push(Event{Type: EventToast, Data: toastData{Level: level, Text: text}})
}

// writeLoop drains the queue until ctx ends. A failed write cancels the
// session.
func (c *conn) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.send:
			writeCtx, done := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, c.ws, ev)
			done()
			if err != nil {
				c.log.Debug("websocket write failed", slog.String("error", err.Error()))
				cancel()
				return
			}
		}
	}
}

func (c *conn) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			_ = c.ws.Ping(pingCtx)
			cancel()
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// WS handles GET /ws/chat/{clientId}
// Upgrades to a WebSocket and runs one chat session for the caller.
//
// Browsers cannot set an Authorization header on a WebSocket handshake,
// so the session token usually comes as ?token=... (see middleware.Token).
//
// Support staff may open any conversation; a USER only their own (clientId
// equal to their user id). Others get 403 before the upgrade.
//
// On connect the server sends the stored history, then {"type":"loading",
// "data":false}. From then on it pushes message, sound, scroll and toast
// events as the session produces them. A client too slow to keep up is
// disconnected with status 1013 (try again later). The browser sends frames:
//
//	{ "type": "compose", "text": "Hel" }
//	{ "type": "key", "key": "Enter" }
//	{ "type": "send", "text": "Hello" }
//	{ "type": "toggle_sound" }
//
// ─────────────────────────────────────────────────────────────────────────────
func WS(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := r.PathValue("clientId")
		sess, ok := authorize(w, r, clientID)
		if !ok {
			return
		}
		log := deps.logger().With(
			slog.String("client_id", clientID),
			slog.String("user_id", sess.UserID))

		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: deps.OriginPatterns})
		if err != nil {
			// Accept has already written the error response
			log.Debug("websocket accept failed", slog.String("error", err.Error()))
			return
		}
		defer ws.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		c := &conn{ws: ws, send: make(chan Event, sendBuffer), log: log, overflow: cancel}
		opts := deps.Options
		opts.Logger = log
		ctrl := chat.NewController(sess, deps.Channel, deps.Persister, c, opts)

		history, err := deps.Store.GetChatMessages(ctx, clientID)
		if err != nil {
			log.Error("error loading chat history", slog.String("error", err.Error()))
			ws.Close(websocket.StatusInternalError, "history unavailable")
			return
		}
		ctrl.Seed(history)
		c.push(Event{Type: EventHistory, Data: ctrl.Messages()})

		sub, err := ctrl.Open(ctx, clientID)
		if err != nil {
			log.Error("error opening chat session", slog.String("error", err.Error()))
			ws.Close(websocket.StatusInternalError, "session unavailable")
			return
		}
		defer sub.Close()

		c.push(Event{Type: EventLoading, Data: ctrl.Loading()})

		go c.writeLoop(ctx, cancel)
		go c.keepAliveLoop(ctx)

		log.Info("chat socket connected")
		readLoop(ctx, ws, ctrl, c, log)
		if c.overflowed.Load() {
			ws.Close(websocket.StatusTryAgainLater, "send queue overflow")
		}
		log.Info("chat socket disconnected")
	}
}

// readLoop applies browser frames to the session until the socket closes
// or ctx ends.
func readLoop(ctx context.Context, ws *websocket.Conn, ctrl *chat.Controller, c *conn, log *slog.Logger) {
	for {
		var f Frame
		if err := wsjson.Read(ctx, ws, &f); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway &&
				!errors.Is(err, context.Canceled) {
				log.Warn("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}

		switch f.Type {
		case FrameCompose:
			ctrl.Compose(f.Text)
		case FrameKey:
			if _, err := ctrl.HandleKey(ctx, f.Key); err != nil {
				log.Error("error sending chat message", slog.String("error", err.Error()))
			}
		case FrameSend:
			text := f.Text
			if text == "" {
				text = ctrl.Draft().Message
			}
			if _, err := ctrl.Send(ctx, text); err != nil {
				log.Error("error sending chat message", slog.String("error", err.Error()))
			}
		case FrameToggleSound:
			c.push(Event{Type: EventSoundSetting, Data: ctrl.ToggleSound()})
		default:
			c.Toast(chat.ToastError, "unknown frame type: "+f.Type)
		}
	}
}
