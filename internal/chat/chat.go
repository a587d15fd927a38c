package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"balance-scale-client/pkg/protocol"
)

// DefaultHistoryLimit bounds the message buffer; oldest entries are
// evicted first.
const DefaultHistoryLimit = 200

// DefaultTypingRefresh is the minimum spacing between repeated "typing"
// signals while the user keeps typing.
const DefaultTypingRefresh = 2200 * time.Millisecond

// Message is one accepted chat entry. Never mutated after append.
type Message struct {
	ID        string
	Name      string
	PlayerID  string
	Text      string
	Timestamp int64
}

// Overlay is the chat-and-presence capability composed into the session
// state. A nil *Overlay means the lobby runs the chat-less variant.
type Overlay struct {
	Messages []Message
	Typing   []string
	limit    int
}

func NewOverlay(limit int) *Overlay {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Overlay{limit: limit}
}

func (o *Overlay) Limit() int { return o.limit }

// sanitize drops malformed entries and fills fallback fields, mirroring
// what the authority tolerates.
func sanitize(e protocol.ChatEntry, now time.Time) (Message, bool) {
	if e.Text == "" {
		return Message{}, false
	}
	m := Message{
		ID:        e.ID,
		Name:      e.Name,
		PlayerID:  e.PlayerID,
		Text:      e.Text,
		Timestamp: e.Timestamp,
	}
	if m.Name == "" {
		m.Name = "Player"
	}
	if m.Timestamp <= 0 {
		m.Timestamp = now.UnixMilli()
	}
	if m.ID == "" {
		m.ID = fmt.Sprintf("%d-%s", m.Timestamp, uuid.NewString()[:8])
	}
	return m, true
}

// Append adds one message, evicting the oldest when over capacity.
func (o *Overlay) Append(e protocol.ChatEntry, now time.Time) {
	m, ok := sanitize(e, now)
	if !ok {
		return
	}
	o.Messages = append(o.Messages, m)
	if len(o.Messages) > o.limit {
		o.Messages = append(o.Messages[:0], o.Messages[len(o.Messages)-o.limit:]...)
	}
}

// ReplaceHistory swaps the buffer for a full-history snapshot, keeping the
// newest entries when the snapshot exceeds capacity.
func (o *Overlay) ReplaceHistory(entries []protocol.ChatEntry, now time.Time) {
	o.Messages = o.Messages[:0]
	for _, e := range entries {
		if m, ok := sanitize(e, now); ok {
			o.Messages = append(o.Messages, m)
		}
	}
	if len(o.Messages) > o.limit {
		o.Messages = append([]Message(nil), o.Messages[len(o.Messages)-o.limit:]...)
	}
}

// SetTyping replaces the presence set wholesale. The local player's own
// name never appears.
func (o *Overlay) SetTyping(names []string, self string) {
	o.Typing = o.Typing[:0]
	for _, name := range names {
		if name == "" || name == self {
			continue
		}
		o.Typing = append(o.Typing, name)
	}
}

func (o *Overlay) ClearTyping() {
	o.Typing = o.Typing[:0]
}

// Reset empties the overlay for a fresh lobby.
func (o *Overlay) Reset() {
	o.Messages = o.Messages[:0]
	o.Typing = o.Typing[:0]
}

func (o *Overlay) Clone() *Overlay {
	if o == nil {
		return nil
	}
	c := &Overlay{limit: o.limit}
	c.Messages = append([]Message(nil), o.Messages...)
	c.Typing = append([]string(nil), o.Typing...)
	return c
}

// TypingLabel formats the indicator line for 1, 2 and 3+ names.
func TypingLabel(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is typing…", names[0])
	case 2:
		return fmt.Sprintf("%s and %s are typing…", names[0], names[1])
	default:
		return fmt.Sprintf("%s, %s +%d more are typing…", names[0], names[1], len(names)-2)
	}
}

// Signal tracks the outbound typing state so "active" refreshes are
// rate-limited and "inactive" fires exactly once.
type Signal struct {
	Active   bool
	LastSent time.Time
	refresh  time.Duration
}

func NewSignal(refresh time.Duration) Signal {
	if refresh <= 0 {
		refresh = DefaultTypingRefresh
	}
	return Signal{refresh: refresh}
}

// ShouldSend reports whether a state change or keep-alive refresh warrants
// an outbound chat_typing event, recording the send when it does.
func (s *Signal) ShouldSend(active bool, now time.Time) bool {
	changed := s.Active != active
	refresh := active && now.Sub(s.LastSent) > s.refresh
	if !changed && !refresh {
		return false
	}
	s.Active = active
	s.LastSent = now
	return true
}

// Reset forgets the outbound state so the next transition replays after a
// reconnect.
func (s *Signal) Reset() {
	s.Active = false
	s.LastSent = time.Time{}
}
