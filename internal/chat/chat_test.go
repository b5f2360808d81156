package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/studyabroad-api/internal/realtime"
	"github.com/aanand-mishra/studyabroad-api/internal/session"
	"github.com/aanand-mishra/studyabroad-api/internal/types"
)

var user = session.Session{UserID: "u1", Name: "Lan", Role: types.RoleUser}

// fakeChannel records publishes and hands out a stream the test feeds.
type fakeChannel struct {
	mu         sync.Mutex
	published  []types.Envelope
	subscribed []string
	stream     chan types.Envelope
	released   bool
	publishErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{stream: make(chan types.Envelope, 16)}
}

func (f *fakeChannel) Subscribe(_ context.Context, channel string) (<-chan types.Envelope, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, channel)
	var once sync.Once
	return f.stream, func() {
		once.Do(func() {
			f.mu.Lock()
			f.released = true
			f.mu.Unlock()
			close(f.stream)
		})
	}, nil
}

func (f *fakeChannel) Publish(_ context.Context, _ string, env types.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, env)
	return f.publishErr
}

func (f *fakeChannel) Published() []types.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Envelope(nil), f.published...)
}

type fakePersister struct {
	mu      sync.Mutex
	saved   []types.ChatMessage
	outcome types.Outcome
	err     error
}

func (p *fakePersister) SendChatSupport(_ context.Context, msg types.ChatMessage) (types.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, msg)
	return p.outcome, p.err
}

func (p *fakePersister) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saved)
}

// recorder is a Notifier that logs what it was told.
type recorder struct {
	mu       sync.Mutex
	appended []string
	sounds   int
	scrolls  int
	toasts   []string
}

func (r *recorder) MessageAppended(m types.ChatMessage) {
	r.mu.Lock()
	r.appended = append(r.appended, m.Message)
	r.mu.Unlock()
}
func (r *recorder) PlaySound()      { r.mu.Lock(); r.sounds++; r.mu.Unlock() }
func (r *recorder) ScrollToLatest() { r.mu.Lock(); r.scrolls++; r.mu.Unlock() }
func (r *recorder) Toast(level ToastLevel, text string) {
	r.mu.Lock()
	r.toasts = append(r.toasts, string(level)+":"+text)
	r.mu.Unlock()
}

func (r *recorder) snapshot() (sounds, scrolls int, toasts []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sounds, r.scrolls, append([]string(nil), r.toasts...)
}

func openController(t *testing.T, ch Channel, p Persister, n Notifier) (*Controller, *Subscription) {
	t.Helper()
	c := NewController(user, ch, p, n, Options{})
	sub, err := c.Open(context.Background(), "c1")
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	return c, sub
}

func TestOpenSubscribesToClientChannel(t *testing.T) {
	ch := newFakeChannel()
	c, _ := openController(t, ch, &fakePersister{}, nil)

	assert.Equal(t, []string{"support:c1"}, ch.subscribed)
	assert.False(t, c.Loading())
	assert.Equal(t, "c1", c.Draft().ClientID)
	assert.Equal(t, "u1", c.Draft().UserID)

	_, err := c.Open(context.Background(), "c1")
	require.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestOpenWithoutClientStaysLoading(t *testing.T) {
	c := NewController(user, newFakeChannel(), &fakePersister{}, nil, Options{})

	sub, err := c.Open(context.Background(), "")
	require.ErrorIs(t, err, ErrNoClient)
	assert.Nil(t, sub)
	assert.True(t, c.Loading())
	assert.Empty(t, c.Messages())

	_, err = c.Send(context.Background(), "hello")
	require.ErrorIs(t, err, ErrNoClient)
}

func TestCloseReleasesSubscription(t *testing.T) {
	ch := newFakeChannel()
	c := NewController(user, ch, &fakePersister{}, nil, Options{})
	sub, err := c.Open(context.Background(), "c1")
	require.NoError(t, err)

	sub.Close()
	sub.Close()

	ch.mu.Lock()
	defer ch.mu.Unlock()
	assert.True(t, ch.released)
}

func TestReceivedMessagesKeepArrivalOrder(t *testing.T) {
	ch := newFakeChannel()
	rec := &recorder{}
	c, sub := openController(t, ch, &fakePersister{}, rec)

	t2 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t1 := t2.Add(time.Hour) // later timestamp arrives first
	ch.stream <- types.Envelope{Name: "support:c1", Data: types.ChatMessage{ID: "1", Role: types.RoleUser, Message: "hi", CreatedAt: t1}}
	ch.stream <- types.Envelope{Name: "support:c1", Data: types.ChatMessage{ID: "2", Role: types.RoleAdmin, Message: "hello", CreatedAt: t2}}
	sub.Close()

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Message)
	assert.Equal(t, "hello", msgs[1].Message)

	sounds, scrolls, _ := rec.snapshot()
	assert.Equal(t, 2, sounds)
	assert.Equal(t, 2, scrolls)
}

func TestMutedSessionPlaysNoSound(t *testing.T) {
	rec := &recorder{}
	c := NewController(user, newFakeChannel(), &fakePersister{}, rec, Options{})

	assert.True(t, c.SoundOn())
	assert.False(t, c.ToggleSound())

	c.OnMessageReceived(types.ChatMessage{ID: "1", Message: "hi"})
	sounds, scrolls, _ := rec.snapshot()
	assert.Equal(t, 0, sounds)
	assert.Equal(t, 1, scrolls)

	assert.True(t, c.ToggleSound())
	c.OnMessageReceived(types.ChatMessage{ID: "2", Message: "again"})
	sounds, _, _ = rec.snapshot()
	assert.Equal(t, 1, sounds)
}

func TestSendEmptyIsNoop(t *testing.T) {
	ch := newFakeChannel()
	p := &fakePersister{}
	c, _ := openController(t, ch, p, nil)
	c.Compose("draft")

	for _, text := range []string{"", "   "} {
		out, err := c.Send(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, types.Outcome{}, out)
	}

	assert.Empty(t, ch.Published())
	assert.Zero(t, p.calls())
	assert.Empty(t, c.Messages())
	assert.Equal(t, "draft", c.Draft().Message)
	_, sent := c.LastSent()
	assert.False(t, sent)
}

func TestSendPublishesOnceAndClearsDraft(t *testing.T) {
	ch := newFakeChannel()
	p := &fakePersister{outcome: types.Outcome{Success: "Message sent"}}
	rec := &recorder{}
	c, _ := openController(t, ch, p, rec)
	c.Compose("hello")

	out, err := c.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Message sent", out.Success)

	pub := ch.Published()
	require.Len(t, pub, 1)
	assert.Equal(t, "support:c1", pub[0].Name)
	assert.Equal(t, "hello", pub[0].Data.Message)
	assert.Equal(t, "u1", pub[0].Data.UserID)
	assert.Equal(t, types.RoleUser, pub[0].Data.Role)
	assert.NotEmpty(t, pub[0].Data.ID)

	assert.Empty(t, c.Draft().Message)
	require.Equal(t, 1, p.calls())
	assert.Equal(t, pub[0].Data, p.saved[0])

	last, ok := c.LastSent()
	require.True(t, ok)
	assert.Equal(t, pub[0].Data, last)

	_, _, toasts := rec.snapshot()
	assert.Equal(t, []string{"success:Message sent"}, toasts)
}

func TestSendClearsDraftWhenPersistFails(t *testing.T) {
	boom := errors.New("db down")
	rec := &recorder{}
	c, _ := openController(t, newFakeChannel(), &fakePersister{err: boom}, rec)
	c.Compose("hello")

	_, err := c.Send(context.Background(), "hello")
	require.ErrorIs(t, err, boom)
	assert.Empty(t, c.Draft().Message)

	_, _, toasts := rec.snapshot()
	assert.Equal(t, []string{"error:db down"}, toasts)
}

func TestSendRejectedByAction(t *testing.T) {
	rec := &recorder{}
	c, _ := openController(t, newFakeChannel(), &fakePersister{outcome: types.Outcome{Error: "Invalid fields"}}, rec)

	out, err := c.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Invalid fields", out.Error)

	_, _, toasts := rec.snapshot()
	assert.Equal(t, []string{"error:Invalid fields"}, toasts)
}

func TestSendStillPersistsWhenPublishFails(t *testing.T) {
	ch := newFakeChannel()
	ch.publishErr = errors.New("broker gone")
	p := &fakePersister{outcome: types.Outcome{Success: "ok"}}
	c, _ := openController(t, ch, p, nil)

	_, err := c.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls())
}

func TestHandleKey(t *testing.T) {
	ch := newFakeChannel()
	p := &fakePersister{outcome: types.Outcome{Success: "ok"}}
	c, _ := openController(t, ch, p, nil)

	c.Compose("hello")
	_, err := c.HandleKey(context.Background(), "a")
	require.NoError(t, err)
	assert.Empty(t, ch.Published())

	_, err = c.HandleKey(context.Background(), KeyEnter)
	require.NoError(t, err)
	assert.Len(t, ch.Published(), 1)

	// draft is empty now, so Enter does nothing
	_, err = c.HandleKey(context.Background(), KeyEnter)
	require.NoError(t, err)
	assert.Len(t, ch.Published(), 1)
}

func TestOwnEchoIsNotDuplicated(t *testing.T) {
	broker := realtime.New(16, nil)
	p := &fakePersister{outcome: types.Outcome{Success: "ok"}}

	// the admin on the other end of the conversation
	admin := NewController(session.Session{UserID: "a1", Name: "Support", Role: types.RoleAdmin}, broker, p, nil, Options{})
	adminSub, err := admin.Open(context.Background(), "c1")
	require.NoError(t, err)

	c := NewController(user, broker, p, nil, Options{})
	sub, err := c.Open(context.Background(), "c1")
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "hello")
	require.NoError(t, err)
	_, err = admin.Send(context.Background(), "how can we help?")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(c.Messages()) == 2 && len(admin.Messages()) == 2 },
		time.Second, 5*time.Millisecond)

	sub.Close()
	adminSub.Close()

	msgs := c.Messages()
	assert.Equal(t, "hello", msgs[0].Message)
	assert.Equal(t, "how can we help?", msgs[1].Message)
	assert.Equal(t, types.RoleAdmin, msgs[1].Role)

	assert.Equal(t, 0, broker.Subscribers("support:c1"))
}

func TestSeedSkipsDuplicates(t *testing.T) {
	c := NewController(user, newFakeChannel(), &fakePersister{}, nil, Options{})
	c.Seed([]types.ChatMessage{{ID: "1", Message: "a"}, {ID: "2", Message: "b"}})
	c.OnMessageReceived(types.ChatMessage{ID: "2", Message: "b"})
	c.OnMessageReceived(types.ChatMessage{ID: "3", Message: "c"})

	var got []string
	for _, m := range c.Messages() {
		got = append(got, m.Message)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}
