package submission

import (
	"context"
	"fmt"
	"time"

	"vsme-guru/internal/common/logger"
)

// DefaultReviewProcess is the BPMN process started for every report.
const DefaultReviewProcess = "vsme-report-review"

// InstanceCreator starts workflow process instances. Implemented by
// camunda.Client.
type InstanceCreator interface {
	CreateInstance(ctx context.Context, processID string, variables interface{}) (int64, error)
}

// ReviewVariables are the process variables of a report review.
type ReviewVariables struct {
	ReportID          string   `json:"reportId"`
	OrganizationName  string   `json:"organizationName"`
	ContactEmail      string   `json:"contactEmail"`
	NumberOfEmployees int      `json:"numberOfEmployees"`
	ActiveInitiatives []string `json:"activeInitiatives"`
	SubmittedAt       string   `json:"submittedAt"`
}

// ProcessStarter starts a review process instance in Camunda for each report.
type ProcessStarter struct {
	creator   InstanceCreator
	processID string
	logger    logger.Logger
}

func NewProcessStarter(creator InstanceCreator, processID string, log logger.Logger) *ProcessStarter {
	if processID == "" {
		processID = DefaultReviewProcess
	}
	return &ProcessStarter{
		creator:   creator,
		processID: processID,
		logger:    log.WithFields(map[string]interface{}{"sink": "camunda", "processId": processID}),
	}
}

func (p *ProcessStarter) Name() string { return "camunda" }

func (p *ProcessStarter) Deliver(ctx context.Context, report *Report) error {
	vars := ReviewVariables{
		ReportID:          report.ID,
		OrganizationName:  report.Data.OrganizationName,
		ContactEmail:      report.Data.Email,
		NumberOfEmployees: report.Data.NumberOfEmployees,
		ActiveInitiatives: report.ActiveInitiatives(),
		SubmittedAt:       report.SubmittedAt.Format(time.RFC3339),
	}
	if vars.ActiveInitiatives == nil {
		vars.ActiveInitiatives = []string{}
	}

	key, err := p.creator.CreateInstance(ctx, p.processID, vars)
	if err != nil {
		return fmt.Errorf("start %s: %w", p.processID, err)
	}

	p.logger.Info("review process started", map[string]interface{}{
		"reportId":           report.ID,
		"processInstanceKey": key,
	})
	return nil
}
