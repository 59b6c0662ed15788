package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vsme-guru/internal/common/logger"
	"vsme-guru/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

var ErrIndexFailed = errors.New("INDEX_FAILED")

// DefaultIndex receives report documents when no index is configured.
const DefaultIndex = "vsme-reports"

// reportDocument is the searchable summary of a report.
type reportDocument struct {
	ReportID           string   `json:"reportId"`
	OrganizationName   string   `json:"organizationName"`
	OrganizationNumber string   `json:"organizationNumber"`
	NaceCode           string   `json:"naceCode"`
	Industry           string   `json:"industry"`
	Revenue            float64  `json:"revenue"`
	NumberOfEmployees  int      `json:"numberOfEmployees"`
	HasSubsidiaries    bool     `json:"hasSubsidiaries"`
	SubsidiaryCount    int      `json:"subsidiaryCount"`
	ActiveInitiatives  []string `json:"activeInitiatives"`
	SubmittedAt        string   `json:"submittedAt"`
}

// ReportIndexer indexes report summaries in Elasticsearch.
type ReportIndexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewReportIndexer(client *elasticsearch.Client, index string, log logger.Logger) *ReportIndexer {
	if index == "" {
		index = DefaultIndex
	}
	return &ReportIndexer{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"sink": "elasticsearch", "index": index}),
	}
}

func (i *ReportIndexer) Name() string { return "elasticsearch" }

// Deliver indexes the report under its id, so retries overwrite.
func (i *ReportIndexer) Deliver(ctx context.Context, report *Report) error {
	data := report.Data
	doc := reportDocument{
		ReportID:           report.ID,
		OrganizationName:   data.OrganizationName,
		OrganizationNumber: data.OrganizationNumber,
		NaceCode:           data.NaceCode,
		Industry:           data.Industry,
		Revenue:            data.Revenue,
		NumberOfEmployees:  data.NumberOfEmployees,
		HasSubsidiaries:    data.HasSubsidiaries == models.SubsidiariesYes,
		SubsidiaryCount:    len(data.Subsidiaries),
		ActiveInitiatives:  report.ActiveInitiatives(),
		SubmittedAt:        report.SubmittedAt.Format(time.RFC3339),
	}
	if doc.ActiveInitiatives == nil {
		doc.ActiveInitiatives = []string{}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encode document: %v", ErrIndexFailed, err)
	}

	res, err := i.client.Index(
		i.index,
		bytes.NewReader(body),
		i.client.Index.WithContext(ctx),
		i.client.Index.WithDocumentID(report.ID),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: %s", ErrIndexFailed, res.Status())
	}

	i.logger.Debug("report indexed", map[string]interface{}{"reportId": report.ID})
	return nil
}
