package store

import "blinds_bridge/internal/models"

// Subscribe returns a channel that receives a copy of every committed change.
// A subscriber that falls behind loses its oldest queued snapshots, never the
// newest one. The returned func unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan models.DeviceSnapshot, func()) {
	ch := make(chan models.DeviceSnapshot, subscriberBuffer)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (s *Store) publish(snap models.DeviceSnapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// full: drop the oldest and retry once
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
