package navigator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Keyring-Network/keyring-gavryn/seeker/internal/rendezvous"
)

// Dispatcher runs a nested step and hands back its result.
type Dispatcher interface {
	Dispatch(ctx context.Context, step func(ctx context.Context) Result) Result
}

type DirectDispatcher struct{}

func (DirectDispatcher) Dispatch(ctx context.Context, step func(ctx context.Context) Result) Result {
	return step(ctx)
}

// RendezvousDispatcher runs every nested step on its own goroutine and awaits it through a
// correlation token.
type RendezvousDispatcher struct {
	table *rendezvous.Table
}

func NewRendezvousDispatcher(table *rendezvous.Table) *RendezvousDispatcher {
	return &RendezvousDispatcher{table: table}
}

func (d *RendezvousDispatcher) Dispatch(ctx context.Context, step func(ctx context.Context) Result) Result {
	token := d.table.Go(ctx, func(ctx context.Context) (string, bool) {
		result := step(ctx)
		encoded, err := json.Marshal(result)
		if err != nil {
			return fmt.Sprintf("encode step result: %v", err), true
		}
		return string(encoded), !result.Success
	})
	reply, err := d.table.Await(ctx, token)
	if err != nil {
		return Result{Kind: KindContentNotFound, Content: fmt.Sprintf("navigation step did not report back: %v", err)}
	}
	var result Result
	if err := json.Unmarshal([]byte(reply.Payload), &result); err != nil {
		return Result{Kind: KindContentNotFound, Content: reply.Payload}
	}
	return result
}
