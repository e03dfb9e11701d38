package navigator

import (
	"context"
	"time"
)

type State string

const (
	StateChooseQueryOrURL   State = "CHOOSE_QUERY_OR_URL"
	StateSearch             State = "SEARCH"
	StateFetch              State = "FETCH"
	StateClassify           State = "CLASSIFY"
	StateAskModelForNextURL State = "ASK_MODEL_FOR_NEXT_URL"
	StateRecurse            State = "RECURSE"
	StateBacktrackRetry     State = "BACKTRACK_RETRY"
	StateSucceed            State = "SUCCEED"
	StateFail               State = "FAIL"
)

type StepEvent struct {
	State   State     `json:"state"`
	NodeID  string    `json:"node_id"`
	Depth   int       `json:"depth"`
	Retries int       `json:"retries"`
	Request string    `json:"request,omitempty"`
	URL     string    `json:"url,omitempty"`
	Kind    Kind      `json:"kind,omitempty"`
	Message string    `json:"message,omitempty"`
	Model   string    `json:"model,omitempty"`
	Time    time.Time `json:"time"`
}

type Observer interface {
	OnStep(ctx context.Context, event StepEvent)
}

type ObserverFunc func(ctx context.Context, event StepEvent)

func (f ObserverFunc) OnStep(ctx context.Context, event StepEvent) {
	f(ctx, event)
}

type nopObserver struct{}

func (nopObserver) OnStep(context.Context, StepEvent) {}
