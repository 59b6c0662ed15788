// Package submission delivers completed VSME reports to the systems that
// store, index and act on them.
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vsme-guru/internal/common/logger"
	"vsme-guru/internal/common/metrics"
	"vsme-guru/internal/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var ErrSubmissionFailed = errors.New("SUBMISSION_FAILED")

// Submitter receives a fully validated report.
type Submitter interface {
	Submit(ctx context.Context, data models.FormData) error
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, data models.FormData) error

func (f SubmitterFunc) Submit(ctx context.Context, data models.FormData) error {
	return f(ctx, data)
}

// Report is a submitted report with the identity every sink shares.
type Report struct {
	ID          string
	SubmittedAt time.Time
	Data        models.FormData
}

// NewReport stamps data with a fresh id and the current time.
func NewReport(data models.FormData) *Report {
	return &Report{
		ID:          uuid.NewString(),
		SubmittedAt: time.Now().UTC(),
		Data:        data,
	}
}

// ActiveInitiatives returns the active initiative keys in display order.
func (r *Report) ActiveInitiatives() []string {
	var active []string
	for _, kind := range models.InitiativeTypes() {
		if r.Data.Initiatives[kind].IsActive {
			active = append(active, string(kind))
		}
	}
	return active
}

// Sink is one destination of a submitted report.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, report *Report) error
}

type submitterSink struct {
	name      string
	submitter Submitter
}

// FromSubmitter turns a Submitter into a Sink.
func FromSubmitter(name string, s Submitter) Sink {
	return &submitterSink{name: name, submitter: s}
}

func (s *submitterSink) Name() string { return s.name }

func (s *submitterSink) Deliver(ctx context.Context, report *Report) error {
	return s.submitter.Submit(ctx, report.Data)
}

// Simulated stands in for a real backend: it waits for a fixed delay and
// succeeds unless ctx is cancelled first.
type Simulated struct {
	delay  time.Duration
	logger logger.Logger
}

func NewSimulated(delay time.Duration, log logger.Logger) *Simulated {
	return &Simulated{
		delay:  delay,
		logger: log.WithFields(map[string]interface{}{"sink": "simulated"}),
	}
}

func (s *Simulated) Submit(ctx context.Context, data models.FormData) error {
	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		s.logger.Info("report accepted", map[string]interface{}{
			"organizationName": data.OrganizationName,
		})
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrSubmissionFailed, ctx.Err())
	}
}

// Composite delivers a report to a primary sink, which must succeed, and then
// to side-effect sinks concurrently. Side-effect failures are logged only.
type Composite struct {
	primary     Sink
	sideEffects []Sink
	logger      logger.Logger
}

func NewComposite(primary Sink, log logger.Logger, sideEffects ...Sink) *Composite {
	return &Composite{
		primary:     primary,
		sideEffects: sideEffects,
		logger:      log.WithFields(map[string]interface{}{"component": "submission"}),
	}
}

// Submit implements Submitter.
func (c *Composite) Submit(ctx context.Context, data models.FormData) error {
	report := NewReport(data)
	log := c.logger.WithFields(map[string]interface{}{"reportId": report.ID})

	err := c.primary.Deliver(ctx, report)
	metrics.RecordSink(c.primary.Name(), err)
	if err != nil {
		log.Error("primary sink failed", map[string]interface{}{
			"sink":  c.primary.Name(),
			"error": err,
		})
		return err
	}

	// Side effects outlive the caller's context.
	sideCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	for _, sink := range c.sideEffects {
		sink := sink
		g.Go(func() error {
			err := sink.Deliver(sideCtx, report)
			metrics.RecordSink(sink.Name(), err)
			if err != nil {
				log.Warn("side-effect sink failed", map[string]interface{}{
					"sink":  sink.Name(),
					"error": err,
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info("report submitted", map[string]interface{}{
		"organizationName": data.OrganizationName,
		"sinks":            len(c.sideEffects) + 1,
	})
	return nil
}
