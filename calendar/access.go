package calendar

import (
	"context"
	"sync"
	"time"
)

// DefaultAccessTimeout bounds the wait for the store's permission callback.
const DefaultAccessTimeout = 10 * time.Second

// Access turns the store's callback-based permission request into a blocking
// call. A grant or denial is remembered for the life of the process; a timeout
// is not, so the next caller asks again.
type Access struct {
	store   Store
	timeout time.Duration

	mu      sync.Mutex
	decided bool
	granted bool
	reason  error
}

// NewAccess returns an Access gate for store. A zero timeout selects
// DefaultAccessTimeout.
func NewAccess(store Store, timeout time.Duration) *Access {
	if timeout <= 0 {
		timeout = DefaultAccessTimeout
	}
	return &Access{store: store, timeout: timeout}
}

type accessDecision struct {
	granted bool
	err     error
}

// Await blocks until the store has granted or denied access, the timeout
// expires or ctx is done.
func (a *Access) Await(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.decided {
		decision := make(chan accessDecision, 1)
		var once sync.Once
		a.store.RequestAccess(func(granted bool, err error) {
			once.Do(func() { decision <- accessDecision{granted: granted, err: err} })
		})

		timer := time.NewTimer(a.timeout)
		defer timer.Stop()

		select {
		case d := <-decision:
			a.decided, a.granted, a.reason = true, d.granted && d.err == nil, d.err
		case <-timer.C:
			return &Error{Kind: KindPermissionDenied, Message: "Timed out waiting for calendar access"}
		case <-ctx.Done():
			return &Error{Kind: KindPermissionDenied, Message: "Calendar access request abandoned", Err: ctx.Err()}
		}
	}

	if !a.granted {
		msg := "Calendar access denied"
		if a.reason != nil {
			msg += ": " + a.reason.Error()
		}
		return &Error{Kind: KindPermissionDenied, Message: msg, Err: a.reason}
	}
	return nil
}
