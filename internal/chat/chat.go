// Package chat runs one support-chat session: it follows the realtime
// channel of a client, keeps the messages in arrival order, and sends the
// user's messages to the channel and to the chat-support action.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aanand-mishra/studyabroad-api/internal/session"
	"github.com/aanand-mishra/studyabroad-api/internal/types"
)

var (
	ErrNoClient    = errors.New("chat: client id is not set")
	ErrAlreadyOpen = errors.New("chat: session already open")
)

// KeyEnter is the key that submits the compose box.
const KeyEnter = "Enter"

// ChannelName is the realtime channel of a client's support conversation.
func ChannelName(clientID string) string {
	return "support:" + clientID
}

// Channel is the realtime pub/sub transport.
type Channel interface {
	Subscribe(ctx context.Context, channel string) (<-chan types.Envelope, func(), error)
	Publish(ctx context.Context, channel string, env types.Envelope) error
}

// Persister is the external chat-support action that stores a message.
type Persister interface {
	SendChatSupport(ctx context.Context, msg types.ChatMessage) (types.Outcome, error)
}

type ToastLevel string

const (
	ToastSuccess ToastLevel = "success"
	ToastError   ToastLevel = "error"
)

// Notifier receives the side effects a session produces for its view.
// Calls for received messages come from a single goroutine, in arrival
// order.
type Notifier interface {
	MessageAppended(msg types.ChatMessage)
	PlaySound()
	ScrollToLatest()
	Toast(level ToastLevel, text string)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) MessageAppended(types.ChatMessage) {}
func (NopNotifier) PlaySound()                        {}
func (NopNotifier) ScrollToLatest()                   {}
func (NopNotifier) Toast(ToastLevel, string)          {}

type Options struct {
	// Muted starts the session with notification sound off.
	Muted  bool
	Logger *slog.Logger
}

// Controller is one chat session.
type Controller struct {
	sess      session.Session
	channel   Channel
	persister Persister
	notifier  Notifier
	log       *slog.Logger

	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	clientID string
	open     bool
	loading  bool
	soundOn  bool
	messages []types.ChatMessage
	seen     map[string]struct{}
	draft    types.ChatDraft
	lastSent *types.ChatMessage
}

// NewController builds a session for the given user. It stays in the
// loading state until Open succeeds.
func NewController(sess session.Session, channel Channel, persister Persister, notifier Notifier, opts Options) *Controller {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Controller{
		sess:      sess,
		channel:   channel,
		persister: persister,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
		loading:   true,
		soundOn:   !opts.Muted,
		messages:  make([]types.ChatMessage, 0),
		seen:      make(map[string]struct{}),
		draft:     types.ChatDraft{Role: sess.Role, UserID: sess.UserID},
	}
}

// Subscription is an open channel subscription. Close releases it and
// waits until no more messages are delivered.
type Subscription struct {
	unsubscribe func()
	done        chan struct{}
	once        sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(s.unsubscribe)
	<-s.done
}

// Done is closed once delivery has stopped, either after Close or because
// the subscribing context ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Open subscribes to the client's channel. Messages are handed to
// OnMessageReceived one at a time in arrival order until the subscription
// is closed or ctx ends.
//
// An empty clientID means the conversation does not exist yet: the
// session stays loading with no messages and ErrNoClient is returned.
func (c *Controller) Open(ctx context.Context, clientID string) (*Subscription, error) {
	if clientID == "" {
		return nil, ErrNoClient
	}

	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		return nil, ErrAlreadyOpen
	}
	c.open = true
	c.mu.Unlock()

	stream, unsubscribe, err := c.channel.Subscribe(ctx, ChannelName(clientID))
	if err != nil {
		c.mu.Lock()
		c.open = false
		c.mu.Unlock()
		return nil, fmt.Errorf("chat: subscribe %s: %w", ChannelName(clientID), err)
	}

	c.mu.Lock()
	c.clientID = clientID
	c.draft.ClientID = clientID
	c.loading = false
	c.mu.Unlock()

	sub := &Subscription{unsubscribe: unsubscribe, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for env := range stream {
			c.OnMessageReceived(env.Data)
		}
	}()

	c.log.Debug("chat session opened",
		slog.String("client_id", clientID),
		slog.String("user_id", c.sess.UserID))

	return sub, nil
}

// OnMessageReceived appends msg to the list. A message whose id is
// already listed (our own optimistic echo) is ignored.
func (c *Controller) OnMessageReceived(msg types.ChatMessage) {
	c.mu.Lock()
	if msg.ID != "" {
		if _, dup := c.seen[msg.ID]; dup {
			c.mu.Unlock()
			return
		}
		c.seen[msg.ID] = struct{}{}
	}
	c.messages = append(c.messages, msg)
	soundOn := c.soundOn
	c.mu.Unlock()

	c.notifier.MessageAppended(msg)
	if soundOn {
		c.notifier.PlaySound()
	}
	c.notifier.ScrollToLatest()
}

// Seed lists stored history ahead of live messages, without
// notifications. Duplicates are skipped as in OnMessageReceived.
func (c *Controller) Seed(history []types.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, msg := range history {
		if _, dup := c.seen[msg.ID]; dup && msg.ID != "" {
			continue
		}
		if msg.ID != "" {
			c.seen[msg.ID] = struct{}{}
		}
		c.messages = append(c.messages, msg)
	}
}

// Compose replaces the text of the compose box.
func (c *Controller) Compose(text string) {
	c.mu.Lock()
	c.draft.Message = text
	c.mu.Unlock()
}

// Draft returns the compose box.
func (c *Controller) Draft() types.ChatDraft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Send publishes text on the channel and stores it through the chat
// support action. Blank text is ignored.
//
// The message is listed locally right away and the compose box is cleared
// whatever the action answers. A failed publish is logged only; the
// action's answer is shown as a toast and returned.
func (c *Controller) Send(ctx context.Context, text string) (types.Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return types.Outcome{}, nil
	}

	c.mu.Lock()
	if c.clientID == "" {
		c.mu.Unlock()
		return types.Outcome{}, ErrNoClient
	}
	msg := types.ChatMessage{
		ID:        c.newID(),
		Role:      c.sess.Role,
		Name:      c.sess.Name,
		Message:   text,
		CreatedAt: c.now().UTC(),
		ClientID:  c.clientID,
		UserID:    c.sess.UserID,
	}
	// listed before publishing so the channel echo is recognised
	c.seen[msg.ID] = struct{}{}
	c.messages = append(c.messages, msg)
	c.draft.Message = ""
	c.lastSent = &msg
	c.mu.Unlock()

	c.notifier.MessageAppended(msg)
	c.notifier.ScrollToLatest()

	name := ChannelName(msg.ClientID)
	if err := c.channel.Publish(ctx, name, types.Envelope{Name: name, Data: msg}); err != nil {
		c.log.Warn("failed to publish chat message",
			slog.String("channel", name),
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()))
	}

	outcome, err := c.persister.SendChatSupport(ctx, msg)
	if err != nil {
		c.notifier.Toast(ToastError, err.Error())
		return types.Outcome{}, fmt.Errorf("chat: send chat support: %w", err)
	}

	switch {
	case outcome.Error != "":
		c.notifier.Toast(ToastError, outcome.Error)
	case outcome.Success != "":
		c.notifier.Toast(ToastSuccess, outcome.Success)
	}

	return outcome, nil
}

// HandleKey submits the compose box on a plain Enter.
func (c *Controller) HandleKey(ctx context.Context, key string) (types.Outcome, error) {
	if key != KeyEnter {
		return types.Outcome{}, nil
	}
	return c.Send(ctx, c.Draft().Message)
}

// ToggleSound flips the notification sound and returns the new setting.
func (c *Controller) ToggleSound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.soundOn = !c.soundOn
	return c.soundOn
}

func (c *Controller) SoundOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.soundOn
}

// Loading reports whether the session is still waiting for a client id.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Messages returns a copy of the message list in arrival order.
func (c *Controller) Messages() []types.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// LastSent returns the most recent message built by Send.
func (c *Controller) LastSent() (types.ChatMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastSent == nil {
		return types.ChatMessage{}, false
	}
	return *c.lastSent, true
}

// ClientID returns the client the session was opened for.
func (c *Controller) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}
