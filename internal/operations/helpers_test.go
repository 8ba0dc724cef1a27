package operations

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStep struct {
	BaseStage
	calls    atomic.Int32
	execute  func(ctx context.Context, state *OperationState, call int) error
	validate error
}

func newFakeStep(id string, deps ...string) *fakeStep {
	return &fakeStep{BaseStage: NewBaseStage(id, "Step "+id, deps)}
}

func (s *fakeStep) withData(inputs []DataRequirement, outputs []DataOutput) *fakeStep {
	s.BaseStage = s.BaseStage.WithData(inputs, outputs)
	return s
}

func (s *fakeStep) Execute(ctx context.Context, state *OperationState) error {
	call := int(s.calls.Add(1))
	if s.execute == nil {
		return nil
	}
	return s.execute(ctx, state, call)
}

func (s *fakeStep) Validate(state *OperationState) error {
	return s.validate
}

type hubEvent struct {
	eventType string
	step      string
	status    string
	metadata  interface{}
}

type fakeHub struct {
	mu     sync.Mutex
	events []hubEvent
}

func (h *fakeHub) BroadcastUpdate(eventType, step, status string, metadata interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, hubEvent{eventType, step, status, metadata})
}

func (h *fakeHub) statuses() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.status)
	}
	return out
}

func fastRetries(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func newTestManager(t testing.TB, config *Config, steps ...Step) (*Manager, *fakeHub) {
	t.Helper()
	hub := &fakeHub{}
	if config == nil {
		config = NewConfigBuilder().WithRetryConfig(fastRetries(1)).Build()
	}
	m := NewManager(hub, nil, config)
	for _, s := range steps {
		require.NoError(t, m.RegisterStage(s))
	}
	t.Cleanup(m.Stop)
	return m, hub
}
