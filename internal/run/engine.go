// Package run provides the orchestrator that drives the adaptive repair loop.
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/patchwright/patchwright/internal/budget"
	"github.com/patchwright/patchwright/internal/clock"
	"github.com/patchwright/patchwright/internal/config"
	"github.com/patchwright/patchwright/internal/constants"
	"github.com/patchwright/patchwright/internal/diagnose"
	"github.com/patchwright/patchwright/internal/domain"
	pwerrors "github.com/patchwright/patchwright/internal/errors"
	"github.com/patchwright/patchwright/internal/repair"
	"github.com/patchwright/patchwright/internal/sandbox"
	"github.com/patchwright/patchwright/internal/synth"
)

// Orchestrator drives a run through the generate-execute-diagnose-repair
// loop until it succeeds or a stop bound fires. One Orchestrator serves many
// runs; per-run state lives in the Run and its Ledger.
type Orchestrator struct {
	store       Store
	synthesizer synth.Synthesizer
	executor    sandbox.Executor
	classifier  *diagnose.Classifier
	daily       *budget.DailyLedger
	cfg         *config.Config
	clock       clock.Clock
	logger      zerolog.Logger
	metrics     Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock (for testing).
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector. Defaults to NoopMetrics.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithClassifier overrides the default classifier (for testing rule sets).
func WithClassifier(c *diagnose.Classifier) Option {
	return func(o *Orchestrator) {
		o.classifier = c
	}
}

// NewOrchestrator creates an orchestrator over the given adapters.
func NewOrchestrator(
	store Store,
	synthesizer synth.Synthesizer,
	executor sandbox.Executor,
	daily *budget.DailyLedger,
	cfg *config.Config,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("store %w", pwerrors.ErrEmptyValue)
	}
	if synthesizer == nil {
		return nil, fmt.Errorf("synthesizer %w", pwerrors.ErrEmptyValue)
	}
	if executor == nil {
		return nil, fmt.Errorf("executor %w", pwerrors.ErrEmptyValue)
	}
	if daily == nil {
		return nil, fmt.Errorf("daily ledger %w", pwerrors.ErrEmptyValue)
	}
	if cfg == nil {
		return nil, pwerrors.ErrConfigNil
	}

	o := &Orchestrator{
		store:       store,
		synthesizer: synthesizer,
		executor:    executor,
		classifier:  diagnose.NewClassifier(),
		daily:       daily,
		cfg:         cfg,
		clock:       clock.RealClock{},
		logger:      zerolog.Nop(),
		metrics:     NoopMetrics{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Execute runs a task end to end and returns the finalized run.
//
// The returned run is non-nil whenever a run record was created, even when
// an error is also returned; callers can inspect its status and history.
// A nil run means validation failed before any state existed.
func (o *Orchestrator) Execute(ctx context.Context, task domain.Task) (*domain.Run, error) {
	task.Config.ApplyDefaults()
	if err := task.Validate(); err != nil {
		return nil, err
	}

	now := o.clock.Now().UTC()
	r := &domain.Run{
		ID:        GenerateRunID(),
		Task:      task,
		Attempts:  []domain.Attempt{},
		State:     constants.StateInit,
		Status:    constants.RunStatusPending,
		CreatedAt: now,
	}
	if err := o.store.Create(ctx, r); err != nil {
		return nil, err
	}

	r.Status = constants.RunStatusRunning
	o.metrics.RunStarted(r.ID)
	o.logger.Info().
		Str("run_id", r.ID).
		Str("description", task.Description).
		Int("max_repair_attempts", task.Config.MaxRepairAttempts).
		Bool("auto_heal", task.Config.AutoHeal).
		Msg("run started")

	// The run deadline bounds everything: synthesis, execution, repairs.
	runCtx, cancel := context.WithTimeout(ctx, task.Config.RunDeadline)
	defer cancel()

	ledger := budget.NewLedger(o.daily, o.cfg.Budget.MaxCostPerRun)

	err := o.loop(runCtx, r, ledger)
	if err != nil && !r.Finalized() {
		// Cancellation or an unrecoverable store fault ends the run here.
		o.abort(r, err)
	}

	o.finishRun(ctx, r)
	return r, err
}

// transition applies a state transition stamped by the orchestrator's clock.
func (o *Orchestrator) transition(ctx context.Context, r *domain.Run, to constants.RunState, reason string) error {
	return Transition(ctx, r, to, reason, o.clock.Now().UTC())
}

// finalize sets the terminal status stamped by the orchestrator's clock.
func (o *Orchestrator) finalize(r *domain.Run, status constants.RunStatus, stopReason string) error {
	return Finalize(r, status, stopReason, o.clock.Now().UTC())
}

// loop is the attempt loop. It returns nil when the run was finalized by a
// normal outcome (success or a planner/budget stop) and an error when the
// run was torn down by cancellation or an infrastructure fault the loop
// cannot absorb.
func (o *Orchestrator) loop(ctx context.Context, r *domain.Run, ledger *budget.Ledger) error {
	var repairHint string

	for {
		if err := o.transition(ctx, r, constants.StateGenerating, generatingReason(r)); err != nil {
			return err
		}
		if err := o.store.Update(ctx, r); err != nil {
			return err
		}

		artifact, synthErr := o.generate(ctx, r, ledger, repairHint)
		if synthErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(synthErr, pwerrors.ErrBudgetExceeded) {
				return o.stopBudgetExhausted(ctx, r)
			}
			if !errors.Is(synthErr, pwerrors.ErrSynthesis) {
				return synthErr
			}
			// A synthesis fault becomes an unclassifiable attempt so the
			// planner's consecutive-unknown bound can end a broken run.
			if err := o.recordFault(ctx, r, synthErr); err != nil {
				return err
			}
			stopped, err := o.planNext(ctx, r, &repairHint)
			if err != nil || stopped {
				return err
			}
			continue
		}

		if err := o.transition(ctx, r, constants.StateExecuting, ""); err != nil {
			return err
		}
		if err := o.store.Update(ctx, r); err != nil {
			return err
		}

		trace, execErr := o.executor.Execute(ctx, &sandbox.Request{
			Script:      artifact.Code,
			Headless:    r.Task.Config.Headless,
			BrowserType: r.Task.Config.BrowserType,
			TimeoutMS:   r.Task.Config.TimeoutMS,
		})
		if execErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := o.recordFaultWithScript(ctx, r, artifact, execErr); err != nil {
				return err
			}
			stopped, err := o.planNext(ctx, r, &repairHint)
			if err != nil || stopped {
				return err
			}
			continue
		}

		if !trace.Failed() {
			o.appendAttempt(r, domain.Attempt{
				Script: *artifact,
				Trace:  *trace,
				Cost:   artifact.Cost,
			})
			if err := o.transition(ctx, r, constants.StateSucceeded, ""); err != nil {
				return err
			}
			return o.finalize(r, constants.RunStatusSucceeded, "")
		}

		if err := o.transition(ctx, r, constants.StateDiagnosing, trace.Error.Message); err != nil {
			return err
		}

		diagnosis := o.classifier.Classify(trace, r.Task.Config.TimeoutMS)
		o.metrics.FailureDiagnosed(r.ID, diagnosis.Category, diagnosis.Confidence)
		o.logger.Info().
			Str("run_id", r.ID).
			Str("category", diagnosis.Category.String()).
			Float64("confidence", diagnosis.Confidence).
			Str("summary", diagnosis.Summary).
			Msg("failure diagnosed")

		o.appendAttempt(r, domain.Attempt{
			Script:    *artifact,
			Trace:     *trace,
			Diagnosis: &diagnosis,
			Cost:      artifact.Cost,
		})
		if err := o.store.Update(ctx, r); err != nil {
			return err
		}

		stopped, err := o.planNext(ctx, r, &repairHint)
		if err != nil || stopped {
			return err
		}
	}
}

// generate reserves budget and requests a script from the synthesizer.
//
// Returns ErrBudgetExceeded when the reservation was denied, the context
// error when the call was canceled (no cost is billed for discarded work),
// and the synthesis error otherwise. On success the actual cost is committed
// and the new artifact version is persisted.
func (o *Orchestrator) generate(ctx context.Context, r *domain.Run, ledger *budget.Ledger, repairHint string) (*domain.ScriptArtifact, error) {
	reservation, err := ledger.Reserve(ctx, reserveEstimate(r))
	if err != nil {
		return nil, err
	}
	if reservation == nil {
		return nil, pwerrors.ErrBudgetExceeded
	}

	req := &synth.Request{
		Description: r.Task.Description,
		TargetURL:   r.Task.TargetURL,
	}
	if prior := r.LatestAttempt(); prior != nil && repairHint != "" {
		req.PriorScript = prior.Script.Code
		req.RepairHint = repairHint
	}

	result, err := o.synthesizer.Generate(ctx, req)
	if err != nil {
		// The reservation is dropped: a failed or canceled call reported no
		// usage, so nothing may be billed.
		reservation.Release()
		return nil, err
	}

	if err := reservation.Commit(ctx, result.EstimatedCost); err != nil {
		return nil, err
	}

	artifact := &domain.ScriptArtifact{
		Code:             result.Script,
		Version:          r.CurrentVersion() + 1,
		Model:            result.Model,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		Cost:             result.EstimatedCost,
		RepairSummary:    repairHint,
		GeneratedAt:      o.clock.Now().UTC(),
	}

	if err := o.store.SaveScript(ctx, r.ID, artifact.Version, artifact.Code); err != nil {
		return nil, err
	}

	o.logger.Debug().
		Str("run_id", r.ID).
		Int("version", artifact.Version).
		Str("model", artifact.Model).
		Float64("cost_usd", artifact.Cost).
		Msg("script generated")

	return artifact, nil
}

// planNext diagnoses nothing itself; it consults the planner on the attempt
// history and either arms the next iteration's repair hint or finalizes the
// run with the planner's stop reason. Returns stopped=true when the run ended.
func (o *Orchestrator) planNext(ctx context.Context, r *domain.Run, repairHint *string) (bool, error) {
	if err := o.transition(ctx, r, constants.StateRepairing, ""); err != nil {
		return false, err
	}

	latest := r.LatestAttempt()
	planner := repair.NewPlanner(repair.Config{
		MaxRepairAttempts:   r.Task.Config.MaxRepairAttempts,
		AutoHeal:            r.Task.Config.AutoHeal,
		ConfidenceThreshold: o.cfg.Repair.ConfidenceThreshold,
	})
	decision := planner.Plan(r.Attempts, latest.Diagnosis)

	if decision.Retry {
		*repairHint = decision.Hint
		o.logger.Info().
			Str("run_id", r.ID).
			Int("attempt", len(r.Attempts)).
			Msg("repair authorized")
		return false, o.store.Update(ctx, r)
	}

	o.logger.Info().
		Str("run_id", r.ID).
		Str("stop_reason", decision.Reason.String()).
		Msg("repair loop stopped")

	if err := o.transition(ctx, r, constants.StateStopped, decision.Reason.String()); err != nil {
		return false, err
	}
	return true, o.finalize(r, decision.Reason.RunStatus(), decision.Reason.String())
}

// stopBudgetExhausted finalizes the run after a denied reservation.
// No attempt is created: the paid call never happened.
func (o *Orchestrator) stopBudgetExhausted(ctx context.Context, r *domain.Run) error {
	o.metrics.BudgetDenied(r.ID, reserveEstimate(r))
	o.logger.Warn().
		Str("run_id", r.ID).
		Float64("total_cost", r.TotalCost).
		Msg("budget reservation denied, stopping run")

	if err := o.transition(ctx, r, constants.StateStopped, "budget reservation denied"); err != nil {
		return err
	}
	return o.finalize(r, constants.RunStatusBudgetExhausted, "budget reservation denied")
}

// recordFault records a synthesis infrastructure fault as an attempt with an
// unclassifiable diagnosis and zero cost.
func (o *Orchestrator) recordFault(ctx context.Context, r *domain.Run, faultErr error) error {
	if err := o.transition(ctx, r, constants.StateDiagnosing, faultErr.Error()); err != nil {
		return err
	}
	o.appendAttempt(r, o.syntheticAttempt(nil, faultErr))
	return o.store.Update(ctx, r)
}

// recordFaultWithScript records an execution infrastructure fault. The
// script was generated and billed, so the attempt carries it and its cost.
func (o *Orchestrator) recordFaultWithScript(ctx context.Context, r *domain.Run, artifact *domain.ScriptArtifact, faultErr error) error {
	if err := o.transition(ctx, r, constants.StateDiagnosing, faultErr.Error()); err != nil {
		return err
	}
	o.appendAttempt(r, o.syntheticAttempt(artifact, faultErr))
	return o.store.Update(ctx, r)
}

// syntheticAttempt builds the attempt recorded for an infrastructure fault.
// Its diagnosis is unknown with zero confidence, which feeds the planner's
// consecutive-unknown stop bound.
func (o *Orchestrator) syntheticAttempt(artifact *domain.ScriptArtifact, faultErr error) domain.Attempt {
	attempt := domain.Attempt{
		Trace: domain.ExecutionTrace{
			Status: domain.TraceStatusFailure,
			Error: &domain.ErrorSignal{
				Message:     faultErr.Error(),
				FailingStep: -1,
			},
		},
		Diagnosis: &domain.Diagnosis{
			Category:    constants.CategoryUnknown,
			Summary:     "infrastructure fault: " + faultErr.Error(),
			Confidence:  0.0,
			DiagnosedAt: o.clock.Now().UTC(),
		},
	}
	if artifact != nil {
		attempt.Script = *artifact
		attempt.Cost = artifact.Cost
	}
	return attempt
}

// appendAttempt appends an attempt with the next contiguous ordinal and
// folds its cost into the run total.
func (o *Orchestrator) appendAttempt(r *domain.Run, attempt domain.Attempt) {
	attempt.Ordinal = len(r.Attempts) + 1
	r.Attempts = append(r.Attempts, attempt)
	r.TotalCost += attempt.Cost

	o.metrics.AttemptExecuted(r.ID, attempt.Ordinal, attempt.Trace.Duration, !attempt.Trace.Failed(), attempt.Cost)
}

// abort finalizes a run torn down mid-flight by cancellation or an
// unrecoverable fault. State machine validity is best-effort here; the
// terminal status is what matters.
func (o *Orchestrator) abort(r *domain.Run, cause error) {
	reason := "aborted: " + cause.Error()
	if !IsTerminalState(r.State) {
		_ = o.transition(context.Background(), r, constants.StateStopped, reason)
	}
	_ = o.finalize(r, constants.RunStatusAborted, reason)
}

// finishRun persists the finalized run and emits completion telemetry.
// Persistence uses a fresh context so a canceled run still reaches disk.
func (o *Orchestrator) finishRun(ctx context.Context, r *domain.Run) {
	saveCtx := ctx
	if saveCtx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := o.store.Update(saveCtx, r); err != nil {
		o.logger.Error().Err(err).Str("run_id", r.ID).Msg("failed to persist finalized run")
	}

	duration := time.Duration(0)
	if r.CompletedAt != nil {
		duration = r.CompletedAt.Sub(r.CreatedAt)
	}
	o.metrics.RunCompleted(r.ID, duration, r.Status, r.TotalCost)
	o.logger.Info().
		Str("run_id", r.ID).
		Str("status", r.Status.String()).
		Str("stop_reason", r.StopReason).
		Int("attempts", len(r.Attempts)).
		Float64("total_cost", r.TotalCost).
		Msg("run completed")
}

// reserveEstimate picks the reservation estimate for the next synthesis
// call. The first attempt has no history and uses the default; after that
// the latest attempt's actual cost is the better predictor. Reserving below
// the real cost would let a run slip past its per-run ceiling, because the
// commit bills the full actual cost after the ceiling check already passed.
func reserveEstimate(r *domain.Run) float64 {
	estimate := constants.DefaultCostEstimate
	for _, attempt := range r.Attempts {
		if attempt.Cost > estimate {
			estimate = attempt.Cost
		}
	}
	return estimate
}

// generatingReason labels the transition into Generating.
func generatingReason(r *domain.Run) string {
	if len(r.Attempts) == 0 {
		return "initial generation"
	}
	return fmt.Sprintf("repair attempt %d", len(r.Attempts))
}
