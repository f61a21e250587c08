package chronology

import "github.com/roach88/chronicle/internal/ir"

// ChangeEvent announces that a chronology was created or gained versions.
type ChangeEvent struct {
	Nid                 ir.Nid
	Kind                ir.ObjectKind
	Assemblage          ir.Nid
	ReferencedComponent ir.Nid
	Added               int

	// Resync is set on the first event delivered after earlier events
	// were dropped for this subscriber; listeners should rebuild any
	// derived state from scratch.
	Resync bool
}

type subscriber struct {
	ch      chan ChangeEvent
	dropped bool
}

// Subscribe registers a listener. Events are delivered without blocking
// Merge: a full buffer drops the event, logs a warning and flags the next
// delivered event with Resync. The returned cancel func unregisters and
// closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan ChangeEvent, func()) {
	ch := make(chan ChangeEvent, buffer)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = &subscriber{ch: ch}
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel
}

func (s *Store) publish(ev ChangeEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, sub := range s.subs {
		out := ev
		out.Resync = sub.dropped
		select {
		case sub.ch <- out:
			sub.dropped = false
		default:
			sub.dropped = true
			s.logger.Warn("dropped change event", "subscriber", id, "nid", ev.Nid)
		}
	}
}
