package shared

import "context"

// TransitionObserver is told when a workflow document changes status.
type TransitionObserver interface {
	Transitioned(ctx context.Context, document, status string)
}

// TransitionFunc adapts a function to TransitionObserver.
type TransitionFunc func(ctx context.Context, document, status string)

// Transitioned calls f.
func (f TransitionFunc) Transitioned(ctx context.Context, document, status string) {
	f(ctx, document, status)
}

// Transitions fans a transition out to each non-nil observer.
type Transitions []TransitionObserver

// Transitioned implements TransitionObserver.
func (t Transitions) Transitioned(ctx context.Context, document, status string) {
	for _, obs := range t {
		if obs != nil {
			obs.Transitioned(ctx, document, status)
		}
	}
}
