package eventbus

// Event represents an arbitrary event passed on the bus.
type Event interface{}

// EventBus implements a simple publish/subscribe event bus.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Bus is the default EventBus implementation using fan-out channels.
type Bus = TypedBus[Event]

// New creates a new Bus.
func New() *Bus { return NewTyped[Event]() }

// SubscribeTo forwards the events of type T published on b to the returned
// channel until cancel is called or the bus is closed.
func SubscribeTo[T any](b EventBus) (events <-chan T, cancel func()) {
	src := b.Subscribe()
	out := make(chan T, DefaultBuffer)
	go func() {
		defer close(out)
		for ev := range src {
			if v, ok := ev.(T); ok {
				select {
				case out <- v:
				default:
				}
			}
		}
	}()
	return out, func() { b.Unsubscribe(src) }
}
