// Package notify implements named broadcast channels.
//
// A Signal holds an ordered list of subscribers. Emit calls them
// synchronously in registration order. A subscriber may disconnect itself,
// or any other subscriber, while a broadcast is in progress; disconnected
// subscribers are not called for the remainder of that broadcast.
package notify

// Connection is the handle returned by Connect.
type Connection struct {
	slot *slot
}

// Disconnect removes the subscriber. Calling it more than once is harmless.
func (c Connection) Disconnect() {
	if c.slot == nil || c.slot.owner == nil {
		return
	}
	c.slot.owner.remove(c.slot)
}

type slot struct {
	owner   remover
	handler any
}

type remover interface {
	remove(*slot)
}

// Signal is a broadcast point with subscribers of handler type F.
type Signal[F any] struct {
	name  string
	slots []*slot
}

// New creates a named signal.
func New[F any](name string) *Signal[F] {
	return &Signal[F]{name: name}
}

// Name returns the channel name.
func (s *Signal[F]) Name() string { return s.name }

// Len returns the number of connected subscribers.
func (s *Signal[F]) Len() int { return len(s.slots) }

// Connect appends a subscriber.
func (s *Signal[F]) Connect(handler F) Connection {
	sl := &slot{owner: s, handler: handler}
	s.slots = append(s.slots, sl)
	return Connection{slot: sl}
}

// Emit calls invoke once per subscriber in registration order.
func (s *Signal[F]) Emit(invoke func(F)) {
	if len(s.slots) == 0 {
		return
	}
	// Snapshot so that connects during the broadcast wait for the next one.
	snapshot := make([]*slot, len(s.slots))
	copy(snapshot, s.slots)
	for _, sl := range snapshot {
		if sl.owner == nil {
			continue
		}
		invoke(sl.handler.(F))
	}
}

func (s *Signal[F]) remove(target *slot) {
	for i, sl := range s.slots {
		if sl == target {
			s.slots = append(s.slots[:i:i], s.slots[i+1:]...)
			break
		}
	}
	target.owner = nil
}
