// Package engine implements the VSME wizard state machine: the current step,
// the accumulated report data, the error map of the last validation and the
// dirty/submitting flags. Every update is persisted as a snapshot; field edits
// through a debounced writer, step changes immediately.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "vsme-guru/internal/common/errors"
	"vsme-guru/internal/common/logger"
	"vsme-guru/internal/models"
	"vsme-guru/internal/submission"
	"vsme-guru/internal/wizard/navigation"
	"vsme-guru/internal/wizard/persistence"
	"vsme-guru/internal/wizard/schema"
)

var (
	ErrStepOutOfRange    = errors.New("STEP_OUT_OF_RANGE")
	ErrStepCountMismatch = errors.New("STEP_COUNT_MISMATCH")
)

// DefaultDebounceDelay is the quiet period before a field edit is persisted.
const DefaultDebounceDelay = 500 * time.Millisecond

// Result messages.
const (
	MsgSubmitted            = "Report submitted successfully"
	MsgFixErrors            = "Please correct the highlighted fields before submitting"
	MsgSubmissionInProgress = "submission already in progress"
)

// Submission outcomes reported to the Recorder.
const (
	OutcomeSucceeded  = "succeeded"
	OutcomeFailed     = "failed"
	OutcomeInvalid    = "invalid"
	OutcomeInProgress = "in_progress"
)

// Recorder observes engine events. metrics.WizardRecorder implements it.
type Recorder interface {
	StepChanged(from, to int)
	ValidationFailed(step, issues int)
	SubmissionCompleted(outcome string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) StepChanged(int, int) {}

func (nopRecorder) ValidationFailed(int, int) {}

func (nopRecorder) SubmissionCompleted(string, time.Duration) {}

type multiRecorder []Recorder

// Recorders returns a Recorder that forwards every event to each of rs.
func Recorders(rs ...Recorder) Recorder {
	var out multiRecorder
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multiRecorder) StepChanged(from, to int) {
	for _, r := range m {
		r.StepChanged(from, to)
	}
}

func (m multiRecorder) ValidationFailed(step, issues int) {
	for _, r := range m {
		r.ValidationFailed(step, issues)
	}
}

func (m multiRecorder) SubmissionCompleted(outcome string, duration time.Duration) {
	for _, r := range m {
		r.SubmissionCompleted(outcome, duration)
	}
}

// State is a point-in-time copy of the wizard state.
type State struct {
	CurrentStep  int               `json:"currentStep"`
	Data         models.FormData   `json:"data"`
	Errors       map[string]string `json:"errors"`
	IsSubmitting bool              `json:"isSubmitting"`
	IsDirty      bool              `json:"isDirty"`
	Navigation   navigation.State  `json:"navigation"`
}

// SubmitResult is the outcome of Submit. Data is set on success only.
type SubmitResult struct {
	Success bool                `json:"success"`
	Data    *models.FormData    `json:"data,omitempty"`
	Errors  map[string]string   `json:"errors,omitempty"`
	Message string              `json:"message"`
	Code    apperrors.ErrorCode `json:"code,omitempty"`
}

// Options configures an Engine. Zero values select defaults; TotalSteps
// defaults to the number of step schemas and must match it when set.
type Options struct {
	TotalSteps    int
	Validator     *schema.Validator
	Persister     *persistence.Persister
	DebounceDelay time.Duration
	Submitter     submission.Submitter
	Recorder      Recorder
	Logger        logger.Logger
}

// Engine is safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	total     int
	validator *schema.Validator
	persister *persistence.Persister
	saver     *persistence.DebouncedSaver
	submitter submission.Submitter
	recorder  Recorder
	log       logger.Logger

	step       int
	data       models.FormData
	errors     map[string]string
	dirty      bool
	submitting bool
	restored   bool
}

// New builds an engine and restores the persisted snapshot, if any.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	if opts.Validator == nil {
		v, err := schema.New()
		if err != nil {
			return nil, err
		}
		opts.Validator = v
	}
	if opts.TotalSteps == 0 {
		opts.TotalSteps = opts.Validator.Steps()
	}
	if opts.TotalSteps != opts.Validator.Steps() {
		return nil, fmt.Errorf("%w: configured %d steps, %d step schemas",
			ErrStepCountMismatch, opts.TotalSteps, opts.Validator.Steps())
	}
	if opts.Persister == nil {
		opts.Persister = persistence.NewPersister(persistence.NewMemoryStore(), persistence.Options{Logger: opts.Logger})
	}
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = DefaultDebounceDelay
	}
	if opts.Submitter == nil {
		opts.Submitter = submission.NewSimulated(0, opts.Logger)
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	e := &Engine{
		total:     opts.TotalSteps,
		validator: opts.Validator,
		persister: opts.Persister,
		saver:     opts.Persister.Debounced(opts.DebounceDelay),
		submitter: opts.Submitter,
		recorder:  opts.Recorder,
		log:       opts.Logger.WithFields(map[string]interface{}{"snapshotKey": opts.Persister.Key()}),
	}
	e.resetLocked()

	if snap := e.persister.Load(ctx); snap != nil {
		e.data = snap.FormData
		if navigation.InRange(snap.CurrentStep, e.total) {
			e.step = snap.CurrentStep
		}
		e.restored = true
		e.log.Info("Wizard restored from snapshot", map[string]interface{}{
			"step":    e.step,
			"savedAt": snap.SavedAt(),
		})
	}
	return e, nil
}

// Restored reports whether the initial state came from a snapshot.
func (e *Engine) Restored() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.restored
}

// TotalSteps returns the number of wizard steps.
func (e *Engine) TotalSteps() int {
	return e.total
}

// UpdateFormData shallow-merges patch into the data, marks the state dirty and
// schedules a debounced snapshot write. An unknown field name or a value of
// the wrong type leaves the state untouched.
func (e *Engine) UpdateFormData(patch map[string]interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	merged, err := e.data.Merge(patch)
	if err != nil {
		return err
	}
	e.data = merged
	e.dirty = true
	e.saver.Save(e.data, e.step)
	return nil
}

// UpdateField sets a single top-level field.
func (e *Engine) UpdateField(name string, value interface{}) error {
	return e.UpdateFormData(map[string]interface{}{name: value})
}

// ValidateCurrentStep validates the current step and replaces the error map
// with its issues.
func (e *Engine) ValidateCurrentStep() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validateLocked()
}

func (e *Engine) validateLocked() bool {
	result := e.validator.ValidateStep(e.step, e.data)
	if result.Valid() {
		e.errors = map[string]string{}
		return true
	}
	e.errors = result.Flatten()
	e.recorder.ValidationFailed(e.step, len(result.Issues))
	return false
}

// GoToStep moves to step without validating and persists immediately.
func (e *Engine) GoToStep(ctx context.Context, step int) error {
	if !navigation.InRange(step, e.total) {
		return fmt.Errorf("%w: %d not in 1..%d", ErrStepOutOfRange, step, e.total)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.moveLocked(ctx, step)
	return nil
}

// GoToNextStep validates the current step and advances when it passes and a
// next step exists.
func (e *Engine) GoToNextStep(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.validateLocked() {
		return false
	}
	next, ok := navigation.Next(e.step, e.total)
	if !ok {
		return false
	}
	e.moveLocked(ctx, next)
	return true
}

// GoToPreviousStep steps back without validating the step being left.
func (e *Engine) GoToPreviousStep(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev, ok := navigation.Previous(e.step)
	if !ok {
		return false
	}
	e.moveLocked(ctx, prev)
	return true
}

func (e *Engine) moveLocked(ctx context.Context, step int) {
	from := e.step
	e.step = step
	e.saver.SaveNow(ctx, e.data, e.step)
	if from != step {
		e.recorder.StepChanged(from, step)
	}
}

// Submit validates every step against the whole data set and hands the data
// to the submitter. The submitter runs without the engine lock held. On
// success the snapshot is cleared and the state reset to defaults; on failure
// the state is left as it was.
func (e *Engine) Submit(ctx context.Context) SubmitResult {
	e.mu.Lock()
	if e.submitting {
		e.mu.Unlock()
		e.recorder.SubmissionCompleted(OutcomeInProgress, 0)
		return SubmitResult{
			Message: MsgSubmissionInProgress,
			Code:    apperrors.ErrCodeSubmissionInProgress,
		}
	}

	result := e.validator.ValidateAll(e.data)
	if !result.Valid() {
		e.errors = result.Flatten()
		errs := copyErrors(e.errors)
		e.mu.Unlock()
		e.recorder.ValidationFailed(0, len(result.Issues))
		e.recorder.SubmissionCompleted(OutcomeInvalid, 0)
		return SubmitResult{
			Errors:  errs,
			Message: MsgFixErrors,
			Code:    apperrors.ErrCodeValidationFailed,
		}
	}

	e.errors = map[string]string{}
	e.submitting = true
	data := e.data.Clone()
	e.mu.Unlock()

	start := time.Now()
	err := e.callSubmitter(ctx, data)
	elapsed := time.Since(start)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitting = false

	if err != nil {
		e.log.Error("Report submission failed", map[string]interface{}{
			"error":    err,
			"duration": elapsed,
		})
		e.recorder.SubmissionCompleted(OutcomeFailed, elapsed)
		return SubmitResult{
			Message: err.Error(),
			Code:    apperrors.ErrCodeSubmissionFailed,
		}
	}

	e.saver.Clear(context.WithoutCancel(ctx))
	e.resetLocked()
	e.recorder.SubmissionCompleted(OutcomeSucceeded, elapsed)
	e.log.Info("Report submitted", map[string]interface{}{
		"organizationName": data.OrganizationName,
		"duration":         elapsed,
	})
	return SubmitResult{
		Success: true,
		Data:    &data,
		Message: MsgSubmitted,
	}
}

// callSubmitter turns a panicking submitter into a failed submission so the
// submitting flag is always released.
func (e *Engine) callSubmitter(ctx context.Context, data models.FormData) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("submitter panicked: %v", r)
		}
	}()
	return e.submitter.Submit(ctx, data)
}

// Reset clears the snapshot and returns to the initial defaults.
func (e *Engine) Reset(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.saver.Clear(ctx)
	e.resetLocked()
}

func (e *Engine) resetLocked() {
	e.step = 1
	e.data = models.DefaultFormData()
	e.errors = map[string]string{}
	e.dirty = false
	e.restored = false
}

// Navigation returns the derived navigation flags of the current step.
func (e *Engine) Navigation() navigation.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return navigation.Compute(e.step, e.total)
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		CurrentStep:  e.step,
		Data:         e.data.Clone(),
		Errors:       copyErrors(e.errors),
		IsSubmitting: e.submitting,
		IsDirty:      e.dirty,
		Navigation:   navigation.Compute(e.step, e.total),
	}
}

// Close writes any pending debounced snapshot and stops the writer.
func (e *Engine) Close() {
	e.saver.Stop()
}

func copyErrors(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
