package events

import (
	"sync"
)

// DefaultBroadcastBufferSize bounds the per-session replay ring kept for SSE
// reconnects.
const DefaultBroadcastBufferSize = 200

// Broadcaster fans events out to subscribed clients, replaying buffered
// events on reconnect (C5, §4.3).
type Broadcaster struct {
	mu         sync.Mutex
	sessions   map[string]*sessionChannel
	bufferSize int
}

type sessionChannel struct {
	buffer      []Event
	subscribers map[int]chan Message
	nextSubID   int
	completed   bool
}

// Message is delivered to a subscriber: either a real Event, or a Done
// sentinel marking session completion.
type Message struct {
	Event Event
	Done  bool
}

// NewBroadcaster creates an empty Broadcaster. bufferSize <= 0 uses the default.
func NewBroadcaster(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultBroadcastBufferSize
	}
	return &Broadcaster{sessions: map[string]*sessionChannel{}, bufferSize: bufferSize}
}

func (b *Broadcaster) sessionFor(sessionID string) *sessionChannel {
	sc, ok := b.sessions[sessionID]
	if !ok {
		sc = &sessionChannel{subscribers: map[int]chan Message{}}
		b.sessions[sessionID] = sc
	}
	return sc
}

// Broadcast appends ev to the session's replay buffer and enqueues it to
// every current subscriber.
func (b *Broadcaster) Broadcast(sessionID string, ev Event) {
	b.mu.Lock()
	sc := b.sessionFor(sessionID)
	sc.buffer = append(sc.buffer, ev)
	if len(sc.buffer) > b.bufferSize {
		sc.buffer = sc.buffer[len(sc.buffer)-b.bufferSize:]
	}
	chans := make([]chan Message, 0, len(sc.subscribers))
	for _, ch := range sc.subscribers {
		chans = append(chans, ch)
	}
	b.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- Message{Event: ev}:
		default:
			// Slow subscriber: drop rather than block the broadcaster; it
			// can still recover via a reconnect + Last-Event-ID replay.
		}
	}
}

// Complete marks the session completed and sends the Done sentinel to every
// subscriber, then to any future one immediately (so a race between
// Complete and Subscribe never hangs a new subscriber forever).
func (b *Broadcaster) Complete(sessionID string) {
	b.mu.Lock()
	sc := b.sessionFor(sessionID)
	sc.completed = true
	chans := make([]chan Message, 0, len(sc.subscribers))
	for _, ch := range sc.subscribers {
		chans = append(chans, ch)
	}
	b.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- Message{Done: true}:
		default:
		}
	}
}

// Subscribe registers a subscriber for sessionID and returns a channel of
// messages plus an unsubscribe function the caller must call on stream
// close (including cancellation). Buffered events with an id strictly
// greater than lastEventID (lexicographic comparison, per §9) are replayed
// synchronously into the returned channel before live events flow; if the
// session is already completed and nothing is left to replay, the Done
// sentinel is delivered immediately.
func (b *Broadcaster) Subscribe(sessionID, lastEventID string) (<-chan Message, func()) {
	b.mu.Lock()
	sc := b.sessionFor(sessionID)

	var replay []Event
	for _, ev := range sc.buffer {
		if lastEventID == "" || ev.ID > lastEventID {
			replay = append(replay, ev)
		}
	}

	ch := make(chan Message, len(replay)+b.bufferSize+1)
	id := sc.nextSubID
	sc.nextSubID++
	sc.subscribers[id] = ch
	completed := sc.completed
	b.mu.Unlock()

	for _, ev := range replay {
		ch <- Message{Event: ev}
	}
	if completed {
		ch <- Message{Done: true}
	}

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sc2, ok := b.sessions[sessionID]; ok {
			delete(sc2.subscribers, id)
		}
	}
	return ch, unsubscribe
}

// SubscriberCount reports how many clients are currently subscribed to a
// session (used by tests to avoid sleeping).
func (b *Broadcaster) SubscriberCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	sc, ok := b.sessions[sessionID]
	if !ok {
		return 0
	}
	return len(sc.subscribers)
}

// Forget drops all buffered state for a session (called once no further
// reconnects are expected, alongside ProgressStore.Remove).
func (b *Broadcaster) Forget(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionID)
}
