package submission

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vsme-guru/internal/common/logger"

	"github.com/lib/pq"
)

var (
	ErrDatabaseInsertFailed = errors.New("DATABASE_INSERT_FAILED")
	ErrDuplicateReport      = errors.New("DUPLICATE_REPORT")
)

const uniqueViolation = "23505"

// ReportRepository stores submitted reports in Postgres.
type ReportRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewReportRepository(db *sql.DB, log logger.Logger) *ReportRepository {
	return &ReportRepository{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"sink": "postgres"}),
	}
}

func (r *ReportRepository) Name() string { return "postgres" }

// Deliver inserts the report row and an audit log entry. The audit entry is
// best effort.
func (r *ReportRepository) Deliver(ctx context.Context, report *Report) error {
	data := report.Data
	submittedAt := report.SubmittedAt.Format(time.RFC3339)

	reportJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal report data: %v", ErrDatabaseInsertFailed, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO vsme_reports (
			id, organization_name, organization_number, nace_code,
			contact_email, report_data, status, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		report.ID,
		data.OrganizationName,
		data.OrganizationNumber,
		data.NaceCode,
		data.Email,
		reportJSON,
		"submitted",
		submittedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: report %s already stored", ErrDuplicateReport, report.ID)
		}
		return fmt.Errorf("%w: insert failed: %v", ErrDatabaseInsertFailed, err)
	}

	auditDetailsJSON, err := json.Marshal(map[string]interface{}{
		"organizationName":  data.OrganizationName,
		"numberOfEmployees": data.NumberOfEmployees,
		"activeInitiatives": report.ActiveInitiatives(),
		"subsidiaryCount":   len(data.Subsidiaries),
	})
	if err != nil {
		auditDetailsJSON = []byte("{}")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		"report_submitted",
		"vsme_report",
		report.ID,
		auditDetailsJSON,
		submittedAt,
	)
	if err != nil {
		r.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":    err,
			"reportId": report.ID,
		})
	}

	r.logger.Info("report stored", map[string]interface{}{
		"reportId":         report.ID,
		"organizationName": data.OrganizationName,
	})
	return nil
}
