package desk

import "sync"

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseOptimistic
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseOptimistic:
		return "optimistic"
	case PhaseSettled:
		return "settled"
	}
	return "unknown"
}

type Kind string

const (
	KindSend       Kind = "send"
	KindResolve    Kind = "resolve"
	KindCreate     Kind = "create"
	KindFeedback   Kind = "feedback"
	KindAddUser    Kind = "add_user"
	KindUpdateUser Kind = "update_user"
	KindDeleteUser Kind = "delete_user"
)

// Action tracks one mutation from dispatch to settlement:
// Idle, then Optimistic once local state is applied, then Settled with either
// no error (Ok) or the failure.
type Action struct {
	Kind Kind

	mu     sync.Mutex
	phase  Phase
	target string
	err    error
	done   chan struct{}
}

func newAction(kind Kind, target string) *Action {
	return &Action{Kind: kind, target: target, done: make(chan struct{})}
}

func (a *Action) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// Target is the conversation or user id the action applies to. Creates and
// user additions learn it when they settle successfully.
func (a *Action) Target() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target
}

// Err is the settlement error; nil while pending or when settled Ok.
func (a *Action) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *Action) Done() <-chan struct{} { return a.done }

func (a *Action) optimistic() {
	a.mu.Lock()
	a.phase = PhaseOptimistic
	a.mu.Unlock()
}

func (a *Action) settle(target string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase == PhaseSettled {
		return
	}
	if target != "" {
		a.target = target
	}
	a.phase = PhaseSettled
	a.err = err
	close(a.done)
}
