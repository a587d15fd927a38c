package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"balance-scale-client/pkg/protocol"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestOverlay_AppendEvictsOldest(t *testing.T) {
	o := NewOverlay(3)
	for i := 1; i <= 5; i++ {
		o.Append(protocol.ChatEntry{ID: fmt.Sprintf("m%d", i), Name: "Ann", Text: fmt.Sprintf("msg %d", i)}, now)
	}

	require.Len(t, o.Messages, 3)
	assert.Equal(t, "m3", o.Messages[0].ID)
	assert.Equal(t, "m5", o.Messages[2].ID)
}

func TestOverlay_AppendDropsEmptyText(t *testing.T) {
	o := NewOverlay(0)
	o.Append(protocol.ChatEntry{ID: "m1", Name: "Ann", Text: ""}, now)
	assert.Empty(t, o.Messages)
}

func TestOverlay_SanitizeFillsFallbacks(t *testing.T) {
	o := NewOverlay(0)
	o.Append(protocol.ChatEntry{Text: "hello"}, now)

	require.Len(t, o.Messages, 1)
	m := o.Messages[0]
	assert.Equal(t, "Player", m.Name)
	assert.Equal(t, now.UnixMilli(), m.Timestamp)
	assert.NotEmpty(t, m.ID)
}

func TestOverlay_ReplaceHistoryKeepsNewest(t *testing.T) {
	o := NewOverlay(2)
	o.Append(protocol.ChatEntry{ID: "old", Text: "old"}, now)

	entries := []protocol.ChatEntry{
		{ID: "h1", Text: "one"},
		{ID: "h2", Text: ""}, // malformed, dropped
		{ID: "h3", Text: "three"},
		{ID: "h4", Text: "four"},
	}
	o.ReplaceHistory(entries, now)

	require.Len(t, o.Messages, 2)
	assert.Equal(t, "h3", o.Messages[0].ID)
	assert.Equal(t, "h4", o.Messages[1].ID)
}

func TestOverlay_SetTypingExcludesSelf(t *testing.T) {
	o := NewOverlay(0)
	o.SetTyping([]string{"Ann", "Bob", ""}, "Ann")
	assert.Equal(t, []string{"Bob"}, o.Typing)

	o.ClearTyping()
	assert.Empty(t, o.Typing)
}

func TestOverlay_CloneIsIndependent(t *testing.T) {
	o := NewOverlay(0)
	o.Append(protocol.ChatEntry{ID: "m1", Name: "Ann", Text: "hi"}, now)
	o.SetTyping([]string{"Bob"}, "Ann")

	c := o.Clone()
	c.Append(protocol.ChatEntry{ID: "m2", Name: "Bob", Text: "yo"}, now)
	c.ClearTyping()

	assert.Len(t, o.Messages, 1)
	assert.Equal(t, []string{"Bob"}, o.Typing)

	var nilOverlay *Overlay
	assert.Nil(t, nilOverlay.Clone())
}

func TestTypingLabel(t *testing.T) {
	assert.Equal(t, "", TypingLabel(nil))
	assert.Equal(t, "Ann is typing…", TypingLabel([]string{"Ann"}))
	assert.Equal(t, "Ann and Bob are typing…", TypingLabel([]string{"Ann", "Bob"}))
	assert.Equal(t, "Ann, Bob +2 more are typing…", TypingLabel([]string{"Ann", "Bob", "Cleo", "Dan"}))
}

func TestSignal_RateLimitsActiveRefreshes(t *testing.T) {
	s := NewSignal(2 * time.Second)

	assert.True(t, s.ShouldSend(true, now), "first active transition sends")
	assert.False(t, s.ShouldSend(true, now.Add(time.Second)), "within refresh window")
	assert.True(t, s.ShouldSend(true, now.Add(3*time.Second)), "keep-alive after the window")
}

func TestSignal_InactiveFiresOnce(t *testing.T) {
	s := NewSignal(2 * time.Second)
	require.True(t, s.ShouldSend(true, now))

	assert.True(t, s.ShouldSend(false, now.Add(100*time.Millisecond)), "state change always sends")
	assert.False(t, s.ShouldSend(false, now.Add(200*time.Millisecond)), "inactive never refreshes")
	assert.False(t, s.ShouldSend(false, now.Add(time.Hour)))
}

func TestSignal_ResetReplaysAfterReconnect(t *testing.T) {
	s := NewSignal(0)
	require.True(t, s.ShouldSend(true, now))
	s.Reset()
	assert.True(t, s.ShouldSend(true, now), "post-reset transition replays")
}
