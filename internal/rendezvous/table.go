package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUnknownToken  = errors.New("unknown correlation token")
	ErrAlreadyPosted = errors.New("correlation token already posted")
	ErrTimeout       = errors.New("rendezvous timed out")
)

type Reply struct {
	Payload string `json:"payload"`
	Failed  bool   `json:"failed"`
}

type slot struct {
	ch     chan Reply
	posted bool
}

// Table correlates fire-and-forget work with a waiter through single-use tokens.
type Table struct {
	mu      sync.Mutex
	pending map[string]*slot
	timeout time.Duration
	logger  *zap.Logger
}

func NewTable(timeout time.Duration, logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Table{
		pending: map[string]*slot{},
		timeout: timeout,
		logger:  logger,
	}
}

func (t *Table) Correlate() string {
	token := uuid.NewString()
	t.mu.Lock()
	t.pending[token] = &slot{ch: make(chan Reply, 1)}
	t.mu.Unlock()
	return token
}

// Await blocks until the token is posted, ctx is done or the table timeout elapses.
// The token is forgotten on return.
func (t *Table) Await(ctx context.Context, token string) (Reply, error) {
	t.mu.Lock()
	entry, ok := t.pending[token]
	t.mu.Unlock()
	if !ok {
		return Reply{}, ErrUnknownToken
	}
	defer t.Forget(token)

	var timeoutCh <-chan time.Time
	if t.timeout > 0 {
		timer := time.NewTimer(t.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case reply := <-entry.ch:
		return reply, nil
	case <-timeoutCh:
		t.logger.Warn("rendezvous timed out", zap.String("token", token), zap.Duration("timeout", t.timeout))
		return Reply{}, ErrTimeout
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

func (t *Table) Post(token string, payload string, failed bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.pending[token]
	if !ok {
		return ErrUnknownToken
	}
	if entry.posted {
		return ErrAlreadyPosted
	}
	entry.posted = true
	entry.ch <- Reply{Payload: payload, Failed: failed}
	return nil
}

func (t *Table) Forget(token string) {
	t.mu.Lock()
	delete(t.pending, token)
	t.mu.Unlock()
}

// Go runs fn in its own goroutine and posts its outcome to a fresh token exactly once,
// including when fn panics.
func (t *Table) Go(ctx context.Context, fn func(ctx context.Context) (string, bool)) string {
	token := t.Correlate()
	go func() {
		reply := Reply{Failed: true}
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("rendezvous worker panicked", zap.String("token", token), zap.Any("panic", r))
				reply = Reply{Payload: fmt.Sprintf("panic: %v", r), Failed: true}
			}
			if err := t.Post(token, reply.Payload, reply.Failed); err != nil {
				t.logger.Debug("rendezvous post dropped", zap.String("token", token), zap.Error(err))
			}
		}()
		payload, failed := fn(ctx)
		reply = Reply{Payload: payload, Failed: failed}
	}()
	return token
}

func (t *Table) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
