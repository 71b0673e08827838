package queue

// Transition describes one item state change, delivered to the injected
// observer after the change is durably committed.
type Transition struct {
	Queue    string
	Ref      Ref
	From     State
	To       State
	Attempts int
	Error    string
}

// Observer receives item transitions. Implementations must be fast and must
// not call back into the Store; they run on the mutating goroutine.
type Observer interface {
	OnTransition(t Transition)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(t Transition)

func (f ObserverFunc) OnTransition(t Transition) { f(t) }

type noopObserver struct{}

func (noopObserver) OnTransition(Transition) {}
