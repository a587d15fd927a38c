package engine

// Intent is the closed set of user-initiated actions. Every intent is
// checked against local preconditions before anything crosses the wire.
type Intent interface{ isIntent() }

func (RequestCreate) isIntent() {}
func (RequestJoin) isIntent()   {}
func (SubmitNumber) isIntent()  {}
func (StartRound) isIntent()    {}
func (FillBots) isIntent()      {}
func (SendChat) isIntent()      {}
func (SetTyping) isIntent()     {}

// RequestCreate asks the authority for a fresh lobby.
type RequestCreate struct {
	Name string
}

// RequestJoin joins an existing lobby by code.
type RequestJoin struct {
	Name string
	Code string
}

// SubmitNumber locks in the round guess.
type SubmitNumber struct {
	Value int
}

// StartRound is the host-only request to begin the first or next round.
type StartRound struct{}

// FillBots is the host-only request to fill empty seats with bots.
type FillBots struct{}

// SendChat posts a chat message.
type SendChat struct {
	Text string
}

// SetTyping reports the local typing state.
type SetTyping struct {
	Active bool
}

// Effect is an outward-facing consequence of a transition: an outbound
// event, or a notice for the render layer.
type Effect interface{ isEffect() }

func (Emit) isEffect()   {}
func (Notice) isEffect() {}

// Emit sends one named event to the authority.
type Emit struct {
	Event   string
	Payload any
}

// Notice is an ordered announcement (rule unlock, game winner) for the
// render layer's modal queue.
type Notice struct {
	Title string
	Text  string
}
