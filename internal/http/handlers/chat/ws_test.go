package chat

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/studyabroad-api/internal/types"
)

func TestPushWhenQueueFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &conn{
		send:     make(chan Event, 1),
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		overflow: cancel,
	}

	c.ScrollToLatest()
	c.PlaySound()
	require.NoError(t, ctx.Err(), "a dropped sound must not end the session")
	assert.False(t, c.overflowed.Load())

	c.MessageAppended(types.ChatMessage{ID: "m1", Message: "hello"})
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.True(t, c.overflowed.Load())

	// the queued event is untouched
	require.Len(t, c.send, 1)
	assert.Equal(t, EventScroll, (<-c.send).Type)

	// a second overflow does not cancel twice
	c.send <- Event{Type: EventScroll}
	c.MessageAppended(types.ChatMessage{ID: "m2"})
	assert.True(t, c.overflowed.Load())
}
