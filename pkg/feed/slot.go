package feed

// Slot is a single-value, latest-wins channel. Publishing replaces any value
// the consumer has not taken yet; neither side ever blocks.
type Slot[T any] struct {
	ch chan T
}

func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{ch: make(chan T, 1)}
}

// Publish stores v, dropping an unread older value. It reports whether a
// value was overwritten.
func (s *Slot[T]) Publish(v T) (dropped bool) {
	for {
		select {
		case s.ch <- v:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			dropped = true
		default:
		}
	}
}

// Take returns the pending value, if any.
func (s *Slot[T]) Take() (T, bool) {
	select {
	case v := <-s.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}
