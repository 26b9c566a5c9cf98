package engine

import (
	"context"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/logger"
	"github.com/alexisbeaulieu97/dcvprov/internal/model"
	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
)

// journal records probe and apply calls across steps in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// fakeStep converges after a configurable number of successful applies and
// can fail its probe or apply on chosen attempts.
type fakeStep struct {
	spec      resource.Spec
	journal   *journal
	satisfied bool
	probeErr  func(probe int) error
	applyErr  func(apply int) error
	onApply   func()
	probes    int
	applies   int
}

func newFakeStep(name string, j *journal) *fakeStep {
	return &fakeStep{
		spec:    resource.Spec{Kind: resource.KindCommand, Name: name, State: resource.StateExecuted},
		journal: j,
	}
}

func (f *fakeStep) Spec() resource.Spec { return f.spec }

func (f *fakeStep) Probe(_ context.Context, _ attrs.NodeAttributes) (*model.EvaluationResult, error) {
	f.probes++
	if f.journal != nil {
		f.journal.add("probe " + f.spec.Name)
	}
	if f.probeErr != nil {
		if err := f.probeErr(f.probes); err != nil {
			return nil, err
		}
	}
	if f.satisfied {
		return model.Satisfied(f.spec.Name, "in desired state"), nil
	}
	return model.NeedsAction(f.spec.Name, "needs change"), nil
}

func (f *fakeStep) Apply(_ context.Context, _ attrs.NodeAttributes, _ *model.EvaluationResult) error {
	f.applies++
	if f.journal != nil {
		f.journal.add("apply " + f.spec.Name)
	}
	if f.onApply != nil {
		f.onApply()
	}
	if f.applyErr != nil {
		if err := f.applyErr(f.applies); err != nil {
			return err
		}
	}
	f.satisfied = true
	return nil
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestExecutor(sleeps *recordedSleeps, opts ...Option) *Executor {
	base := []Option{
		WithSleeper(sleeps.sleep),
		WithIDGenerator(func() string { return "run-1" }),
		WithRecipeName("test"),
	}
	return NewExecutor(logger.Nop(), append(base, opts...)...)
}

func steps(fakes ...*fakeStep) []resource.Step {
	out := make([]resource.Step, len(fakes))
	for i, f := range fakes {
		out[i] = f
	}
	return out
}
