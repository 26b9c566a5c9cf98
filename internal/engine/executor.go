package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/dcvprov/internal/attrs"
	"github.com/alexisbeaulieu97/dcvprov/internal/gate"
	"github.com/alexisbeaulieu97/dcvprov/internal/logger"
	"github.com/alexisbeaulieu97/dcvprov/internal/model"
	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
	dcverrors "github.com/alexisbeaulieu97/dcvprov/pkg/errors"
)

// Sleeper waits d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option configures an Executor.
type Option func(*Executor)

// WithSleeper replaces the wait between attempts.
func WithSleeper(sleep Sleeper) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithClock replaces the time source used for timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator replaces how run ids are minted.
func WithIDGenerator(newID func() string) Option {
	return func(e *Executor) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// WithObserver registers observers notified of run progress.
func WithObserver(observers ...Observer) Option {
	return func(e *Executor) {
		for _, o := range observers {
			if o != nil {
				e.observers = append(e.observers, o)
			}
		}
	}
}

// WithRecipeName labels the summaries the executor produces.
func WithRecipeName(name string) Option {
	return func(e *Executor) {
		e.recipe = name
	}
}

// Executor runs an ordered list of steps behind a gate, one at a time,
// stopping at the first step that fails.
type Executor struct {
	logger    *logger.Logger
	sleep     Sleeper
	now       func() time.Time
	newID     func() string
	recipe    string
	observers []Observer
}

// NewExecutor creates a new executor instance.
func NewExecutor(log *logger.Logger, opts ...Option) *Executor {
	e := &Executor{
		logger: log,
		sleep:  sleepContext,
		now:    time.Now,
		newID:  newRunID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run validates every step, evaluates the gate once and applies the steps in
// order. A closed gate yields an empty, successful summary. The first failed
// step aborts the run: the summary is returned together with an
// *errors.ExecutionError naming that step. Validation failures are returned
// before anything runs, with a nil summary.
func (e *Executor) Run(ctx context.Context, g gate.Gate, steps []resource.Step, a attrs.NodeAttributes) (*model.RunSummary, error) {
	if err := Validate(steps); err != nil {
		return nil, err
	}
	if g == nil {
		g = gate.Always
	}

	summary := model.NewRunSummary(e.newID(), e.recipe, e.now())
	log := e.logger.WithFields(map[string]any{"run_id": summary.RunID, "recipe": e.recipe})
	e.notifyStarted(summary)

	open := g.Evaluate(a)
	if err := summary.Transition(model.RunGateEvaluated); err != nil {
		return nil, err
	}
	log.WithField("open", open).Debug("gate evaluated")

	if !open {
		if err := summary.Finalize(model.RunSuccess, e.now()); err != nil {
			return nil, err
		}
		log.Info("gate closed, nothing to do")
		e.notifyFinished(summary)
		return summary, nil
	}

	if err := summary.Transition(model.RunRunning); err != nil {
		return nil, err
	}
	log.WithField("steps", len(steps)).Info("run started")

	for _, step := range steps {
		result, stepErr := e.ApplyStep(ctx, step, a)
		if err := summary.Append(result); err != nil {
			return nil, err
		}
		e.notifyStep(summary.RunID, result)

		if result.Failed() {
			if err := summary.Finalize(model.RunAborted, e.now()); err != nil {
				return nil, err
			}
			log.WithField("step", result.StepName).Error(stepErr, "run aborted")
			e.notifyFinished(summary)
			return summary, dcverrors.NewExecutionError(result.StepName, stepErr)
		}
	}

	if err := summary.Finalize(model.RunSuccess, e.now()); err != nil {
		return nil, err
	}
	log.WithFields(map[string]any{
		"applied":           summary.Count(model.OutcomeApplied),
		"already_satisfied": summary.Count(model.OutcomeAlreadySatisfied),
		"duration":          summary.Duration().String(),
	}).Info("run finished")
	e.notifyFinished(summary)
	return summary, nil
}

// ApplyStep drives one step through probe and apply, retrying failures up to
// the step's attempt budget. A probe that finds the desired state on the
// first attempt yields AlreadySatisfied; on a later attempt the state was
// reached during this run and the step counts as Applied. The returned error
// is the cause of a Failed result and nil otherwise.
func (e *Executor) ApplyStep(ctx context.Context, step resource.Step, a attrs.NodeAttributes) (model.StepResult, error) {
	spec := step.Spec()
	log := e.logger.WithFields(map[string]any{"step": spec.Name, "kind": string(spec.Kind)})
	start := e.now()

	result := model.StepResult{StepName: spec.Name, Kind: string(spec.Kind)}
	finish := func(outcome model.Outcome, attempts int, message string, err error) (model.StepResult, error) {
		result.Outcome = outcome
		result.Attempts = attempts
		result.Message = message
		if err != nil {
			result.Error = err.Error()
		}
		result.Timestamp = e.now()
		result.Duration = result.Timestamp.Sub(start)
		log.WithFields(map[string]any{"outcome": string(outcome), "attempt": attempts, "message": message}).Info("step finished")
		return result, err
	}

	maxAttempts := spec.MaxAttempts()
	attempts := 0
	var lastErr error
	for attempts < maxAttempts {
		attempts++
		applied, message, err := e.attempt(ctx, step, a)
		if err == nil {
			if !applied && attempts == 1 {
				return finish(model.OutcomeAlreadySatisfied, attempts, message, nil)
			}
			return finish(model.OutcomeApplied, attempts, message, nil)
		}

		lastErr = err
		log.WithFields(map[string]any{"attempt": attempts, "max_attempts": maxAttempts, "error": err.Error()}).Warn("attempt failed")
		if attempts == maxAttempts {
			break
		}
		if waitErr := e.sleep(ctx, spec.RetryDelay); waitErr != nil {
			lastErr = fmt.Errorf("%w (retry wait interrupted: %v)", lastErr, waitErr)
			break
		}
	}

	if maxAttempts > 1 {
		lastErr = resource.NewRetryExhaustedError(spec.Name, attempts, lastErr)
	}
	return finish(model.OutcomeFailed, attempts, lastErr.Error(), lastErr)
}

// attempt runs one probe and, when needed, one apply. applied reports
// whether Apply ran successfully.
func (e *Executor) attempt(ctx context.Context, step resource.Step, a attrs.NodeAttributes) (applied bool, message string, err error) {
	name := step.Spec().Name
	phase := "probe"
	defer func() {
		if r := recover(); r != nil {
			applied = false
			if phase == "probe" {
				err = resource.NewProbeError(name, fmt.Errorf("panic: %v", r))
			} else {
				err = resource.NewApplyError(name, fmt.Errorf("panic: %v", r))
			}
		}
	}()

	eval, err := step.Probe(ctx, a)
	if err != nil {
		return false, "", asStepError(err, func(err error) error { return resource.NewProbeError(name, err) })
	}
	if eval == nil {
		return false, "", resource.NewProbeError(name, errors.New("probe returned no result"))
	}
	if !eval.RequiresAction {
		return false, eval.Message, nil
	}

	phase = "apply"
	if err := step.Apply(ctx, a, eval); err != nil {
		return false, "", asStepError(err, func(err error) error { return resource.NewApplyError(name, err) })
	}
	return true, eval.Message, nil
}

// Validate checks every step before anything runs.
func Validate(steps []resource.Step) error {
	for i, step := range steps {
		if step == nil {
			return resource.NewValidationError(fmt.Sprintf("steps[%d]", i), errors.New("step is nil"))
		}
		if err := step.Spec().Validate(); err != nil {
			return err
		}
	}
	return nil
}

func asStepError(err error, wrap func(error) error) error {
	if _, ok := resource.AsStepError(err); ok {
		return err
	}
	return wrap(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (e *Executor) notifyStarted(summary *model.RunSummary) {
	for _, o := range e.observers {
		o.RunStarted(summary.RunID, summary.Recipe, summary.StartedAt)
	}
}

func (e *Executor) notifyStep(runID string, result model.StepResult) {
	for _, o := range e.observers {
		o.StepFinished(runID, result)
	}
}

func (e *Executor) notifyFinished(summary *model.RunSummary) {
	for _, o := range e.observers {
		o.RunFinished(summary)
	}
}
