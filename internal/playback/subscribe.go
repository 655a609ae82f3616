package playback

import (
	crand "crypto/rand"
	"encoding/hex"
)

// subscriberBuffer bounds each subscriber's queue. A slow subscriber loses
// intermediate snapshots but always receives the latest one.
const subscriberBuffer = 16

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a channel that receives a snapshot after every state
// change, starting with the current state. The channel is closed by
// Unsubscribe or Close.
func (s *Session) Subscribe() (string, <-chan Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := randomID()
	ch := make(chan Snapshot, subscriberBuffer)
	if s.closed {
		close(ch)
		return id, ch
	}
	ch <- s.snapshotLocked()

	s.subMu.Lock()
	s.subscribers[id] = ch
	s.subMu.Unlock()
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (s *Session) Unsubscribe(id string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Subscribers returns the number of registered subscribers.
func (s *Session) Subscribers() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subscribers)
}

// publishLocked delivers snap without blocking. When a subscriber's queue
// is full its oldest snapshot is dropped to make room.
func (s *Session) publishLocked(snap Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
