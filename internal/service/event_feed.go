package service

import (
	"sync"

	"github.com/planora/hub/internal/model"
)

// subscriber is one SSE client connection for a team feed.
type subscriber struct {
	teamID int64
	ch     chan *model.ChangeEvent
}

// EventFeed distributes entity change events to connected SSE clients.
// It keeps an in-memory ring buffer of the last 500 events per team
// and a fan-out map of team → subscribers.
type EventFeed struct {
	mu sync.RWMutex
	// teamID → list of subscribers
	subscribers map[int64][]*subscriber
	// teamID → recent events (ring buffer, max 500)
	recent map[int64][]*model.ChangeEvent
	// teamID → last assigned sequence number
	seq map[int64]int
}

func NewEventFeed() *EventFeed {
	return &EventFeed{
		subscribers: make(map[int64][]*subscriber),
		recent:      make(map[int64][]*model.ChangeEvent),
		seq:         make(map[int64]int),
	}
}

// Publish assigns the event its per-team sequence number, appends it to
// the ring buffer and fans it out to subscribers of that team.
func (f *EventFeed) Publish(teamID int64, event *model.ChangeEvent) {
	if teamID == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq[teamID]++
	event.Seq = f.seq[teamID]

	buf := f.recent[teamID]
	buf = append(buf, event)
	if len(buf) > 500 {
		buf = buf[len(buf)-500:]
	}
	f.recent[teamID] = buf

	for _, sub := range f.subscribers[teamID] {
		select {
		case sub.ch <- event:
		default:
			// Slow consumer, drop. Client will reconnect and replay via since_seq.
		}
	}
}

// Subscribe registers a new SSE client for a team.
// Returns a channel of events and a cancel function to unsubscribe.
func (f *EventFeed) Subscribe(teamID int64, sinceSeq int) (<-chan *model.ChangeEvent, func()) {
	f.mu.Lock()

	// Replay is queued before the subscriber becomes visible to Publish,
	// so a client sees events in sequence order. The channel is sized to
	// hold the whole backlog plus live headroom.
	var toReplay []*model.ChangeEvent
	for _, ev := range f.recent[teamID] {
		if ev.Seq > sinceSeq {
			toReplay = append(toReplay, ev)
		}
	}
	ch := make(chan *model.ChangeEvent, len(toReplay)+64)
	for _, ev := range toReplay {
		ch <- ev
	}

	sub := &subscriber{teamID: teamID, ch: ch}
	f.subscribers[teamID] = append(f.subscribers[teamID], sub)
	f.mu.Unlock()

	// Publish only sends while holding the lock, so once the subscriber
	// is removed nothing else writes to ch and it can be closed.
	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.subscribers[teamID]
		updated := subs[:0]
		for _, s := range subs {
			if s != sub {
				updated = append(updated, s)
			}
		}
		f.subscribers[teamID] = updated
		close(ch)
	}

	return ch, cancel
}

// RecentEvents returns buffered events for a team since a sequence number.
func (f *EventFeed) RecentEvents(teamID int64, sinceSeq int) []*model.ChangeEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []*model.ChangeEvent
	for _, ev := range f.recent[teamID] {
		if ev.Seq > sinceSeq {
			out = append(out, ev)
		}
	}
	return out
}
