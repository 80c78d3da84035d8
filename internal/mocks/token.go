package mocks

import (
	"sync"
	"time"
)

// DoneToken is an already completed mqtt.Token carrying err.
type DoneToken struct {
	Err error
}

// NewDoneToken returns a completed token.
func NewDoneToken(err error) *DoneToken {
	return &DoneToken{Err: err}
}

func (t *DoneToken) Wait() bool                     { return true }
func (t *DoneToken) WaitTimeout(time.Duration) bool { return true }
func (t *DoneToken) Error() error                   { return t.Err }

func (t *DoneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// PendingToken is an mqtt.Token that completes only when Complete is called.
type PendingToken struct {
	done chan struct{}
	once sync.Once
}

// NewPendingToken returns a token still waiting for the broker.
func NewPendingToken() *PendingToken {
	return &PendingToken{done: make(chan struct{})}
}

// Complete acknowledges the token. Safe to call more than once.
func (t *PendingToken) Complete() {
	t.once.Do(func() { close(t.done) })
}

func (t *PendingToken) Wait() bool {
	<-t.done
	return true
}

func (t *PendingToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *PendingToken) Error() error          { return nil }
func (t *PendingToken) Done() <-chan struct{} { return t.done }
