package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"balance-scale-client/internal/engine"
	"balance-scale-client/pkg/protocol"
)

// Msg is the sealed inbox union. All state mutation happens on the
// session loop, one message at a time; no two handlers ever run
// concurrently.
type Msg interface{ isSessionMsg() }

type fromServer struct{ ev protocol.ServerEvent }

func (fromServer) isSessionMsg() {}

type fromUser struct{ intent engine.Intent }

func (fromUser) isSessionMsg() {}

type connected struct{ socketID string }

func (connected) isSessionMsg() {}

type disconnected struct{ reason string }

func (disconnected) isSessionMsg() {}

type connectFailed struct{ err error }

func (connectFailed) isSessionMsg() {}

type subscribe struct {
	id     string
	outbox chan Snapshot
}

func (subscribe) isSessionMsg() {}

type unsubscribe struct{ id string }

func (unsubscribe) isSessionMsg() {}

type getView struct{ reply chan View }

func (getView) isSessionMsg() {}

type shutdown struct{}

func (shutdown) isSessionMsg() {}

// Snapshot is a read-only projection pushed to subscribers after every
// transition. Consumers must not mutate it; State is a deep clone.
type Snapshot struct {
	Version int
	State   engine.State
	Notices []engine.Notice
}

// View reflects internal state without data races; used by the debug
// surface and tests.
type View struct {
	Version        int
	NumSubscribers int
	State          engine.State
}

// Emitter is the outbound half of the channel. The session never blocks
// on it; a send failure while disconnected is expected and the engine
// replays the relevant intent after reconnection.
type Emitter interface {
	Emit(event string, payload any) error
}

// Session owns the engine state and serializes every mutation through its
// inbox.
type Session struct {
	inbox   chan Msg
	state   engine.State
	version int
	subs    map[string]chan Snapshot
	emitter Emitter
	now     func() time.Time
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// New starts the session loop.
func New(parent context.Context, initial engine.State, emitter Emitter, log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		inbox:   make(chan Msg, 64),
		state:   initial,
		subs:    make(map[string]chan Snapshot),
		emitter: emitter,
		now:     time.Now,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go s.loop()
	return s
}

// Transport hooks. These are the only entry points for inbound events, so
// delivery order on a single connection is preserved.

func (s *Session) HandleEvent(ev protocol.ServerEvent) { s.post(fromServer{ev: ev}) }
func (s *Session) HandleConnected(socketID string)     { s.post(connected{socketID: socketID}) }
func (s *Session) HandleDisconnected(reason string)    { s.post(disconnected{reason: reason}) }
func (s *Session) HandleConnectError(err error)        { s.post(connectFailed{err: err}) }

// Dispatch queues one user intent.
func (s *Session) Dispatch(in engine.Intent) { s.post(fromUser{intent: in}) }

// Subscribe registers a snapshot consumer and immediately sends the
// current projection.
func (s *Session) Subscribe(id string, outbox chan Snapshot) {
	s.post(subscribe{id: id, outbox: outbox})
}

func (s *Session) Unsubscribe(id string) { s.post(unsubscribe{id: id}) }

// CurrentView fetches a consistent copy of the projection.
func (s *Session) CurrentView(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case s.inbox <- getView{reply: reply}:
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-s.ctx.Done():
		return View{}, s.ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Shutdown stops the loop and closes all subscriber channels.
func (s *Session) Shutdown() { s.post(shutdown{}) }

func (s *Session) post(m Msg) {
	select {
	case s.inbox <- m:
	case <-s.ctx.Done():
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.teardown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case fromServer:
				s.transition(func(st engine.State) (engine.State, []engine.Effect) {
					return engine.Apply(st, msg.ev, s.now())
				})

			case fromUser:
				s.transition(func(st engine.State) (engine.State, []engine.Effect) {
					return engine.ApplyIntent(st, msg.intent, s.now())
				})

			case connected:
				s.transition(func(st engine.State) (engine.State, []engine.Effect) {
					return engine.ApplyConnected(st, msg.socketID)
				})

			case disconnected:
				s.transition(func(st engine.State) (engine.State, []engine.Effect) {
					return engine.ApplyDisconnected(st, msg.reason)
				})

			case connectFailed:
				s.transition(func(st engine.State) (engine.State, []engine.Effect) {
					return engine.ApplyConnectFailed(st, msg.err)
				})

			case subscribe:
				s.subs[msg.id] = msg.outbox
				msg.outbox <- Snapshot{Version: s.version, State: s.state.Clone()}

			case unsubscribe:
				delete(s.subs, msg.id)

			case getView:
				msg.reply <- View{
					Version:        s.version,
					NumSubscribers: len(s.subs),
					State:          s.state.Clone(),
				}

			case shutdown:
				s.teardown()
				return
			}
		}
	}
}

func (s *Session) transition(apply func(engine.State) (engine.State, []engine.Effect)) {
	next, effects := apply(s.state)
	s.state = next
	s.version++

	var notices []engine.Notice
	for _, eff := range effects {
		switch eff := eff.(type) {
		case engine.Emit:
			if s.emitter == nil {
				s.log.Warn("no emitter bound, dropping outbound event", zap.String("event", eff.Event))
				continue
			}
			if err := s.emitter.Emit(eff.Event, eff.Payload); err != nil {
				// Expected while disconnected; the engine re-emits what
				// matters once the channel reports connected again.
				s.log.Warn("outbound event dropped", zap.String("event", eff.Event), zap.Error(err))
			}
		case engine.Notice:
			notices = append(notices, eff)
		}
	}

	s.broadcast(Snapshot{Version: s.version, State: s.state.Clone(), Notices: notices})
}

func (s *Session) broadcast(snap Snapshot) {
	for id, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Slow consumer; drop it rather than block the loop.
			s.log.Warn("dropping slow snapshot subscriber", zap.String("subscriber", id))
			close(ch)
			delete(s.subs, id)
		}
	}
}

func (s *Session) teardown() {
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.cancel()
}
