package submission

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"vsme-guru/internal/common/logger"
)

var ErrNotificationSendFailed = errors.New("NOTIFICATION_SEND_FAILED")

// EventReportSubmitted is the event type published for every new report.
const EventReportSubmitted = "report.submitted"

// EmailSender sends a single email. Implemented by aws.SESClient.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, textBody, htmlBody string) (string, error)
}

// EventPublisher publishes a JSON event. Implemented by aws.SNSClient.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType, subject string, payload interface{}) (string, error)
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(
	`Hello {{.ContactPerson}},

we have received the VSME sustainability report for {{.OrganizationName}}.
Reference: {{.ReportID}}
Submitted: {{.SubmittedAt}}
{{if .Initiatives}}
Active initiatives: {{.Initiatives}}
{{end}}
VSME Guru
`))

// Notifier emails a confirmation to the report's contact person and publishes
// a report event. Either channel may be nil.
type Notifier struct {
	email  EmailSender
	events EventPublisher
	logger logger.Logger
}

func NewNotifier(email EmailSender, events EventPublisher, log logger.Logger) *Notifier {
	return &Notifier{
		email:  email,
		events: events,
		logger: log.WithFields(map[string]interface{}{"sink": "notifier"}),
	}
}

func (n *Notifier) Name() string { return "notifier" }

// Deliver attempts every configured channel and reports all failures.
func (n *Notifier) Deliver(ctx context.Context, report *Report) error {
	var errs []error

	if n.email != nil && report.Data.Email != "" {
		if err := n.sendConfirmation(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}

	if n.events != nil {
		if err := n.publish(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrNotificationSendFailed, errors.Join(errs...))
	}
	return nil
}

func (n *Notifier) sendConfirmation(ctx context.Context, report *Report) error {
	var body bytes.Buffer
	err := confirmationTemplate.Execute(&body, map[string]interface{}{
		"ContactPerson":    report.Data.ContactPerson,
		"OrganizationName": report.Data.OrganizationName,
		"ReportID":         report.ID,
		"SubmittedAt":      report.SubmittedAt.Format(time.RFC1123),
		"Initiatives":      strings.Join(report.ActiveInitiatives(), ", "),
	})
	if err != nil {
		return fmt.Errorf("render confirmation: %w", err)
	}

	subject := fmt.Sprintf("VSME report received: %s", report.Data.OrganizationName)
	messageID, err := n.email.SendEmail(ctx, report.Data.Email, subject, body.String(), "")
	if err != nil {
		n.logger.Error("email send failed", map[string]interface{}{
			"error":    err,
			"reportId": report.ID,
		})
		return err
	}
	n.logger.Info("confirmation email sent", map[string]interface{}{
		"reportId":  report.ID,
		"messageId": messageID,
	})
	return nil
}

func (n *Notifier) publish(ctx context.Context, report *Report) error {
	payload := map[string]interface{}{
		"reportId":           report.ID,
		"organizationName":   report.Data.OrganizationName,
		"organizationNumber": report.Data.OrganizationNumber,
		"naceCode":           report.Data.NaceCode,
		"numberOfEmployees":  report.Data.NumberOfEmployees,
		"activeInitiatives":  report.ActiveInitiatives(),
		"submittedAt":        report.SubmittedAt.Format(time.RFC3339),
	}
	messageID, err := n.events.PublishEvent(ctx, EventReportSubmitted, "New VSME report", payload)
	if err != nil {
		n.logger.Error("event publish failed", map[string]interface{}{
			"error":    err,
			"reportId": report.ID,
		})
		return err
	}
	n.logger.Debug("report event published", map[string]interface{}{
		"reportId":  report.ID,
		"messageId": messageID,
	})
	return nil
}
