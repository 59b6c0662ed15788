// internal/common/database/elasticsearch.go
package database

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"vsme-guru/internal/common/config"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticsearchClient wraps the Elasticsearch client used to index reports.
type ElasticsearchClient struct {
	Client *elasticsearch.Client
	Index  string
}

// NewElasticsearch creates a new Elasticsearch client
func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
	}

	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &ElasticsearchClient{Client: es, Index: cfg.Index}, nil
}

// Ping tests the Elasticsearch connection
func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	res, err := c.Client.Ping(
		c.Client.Ping.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}

	return nil
}

// reportMapping keeps identifiers as keywords so reports can be filtered by
// organization, NACE code and initiative.
const reportMapping = `{
  "mappings": {
    "properties": {
      "reportId":           {"type": "keyword"},
      "organizationName":   {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "organizationNumber": {"type": "keyword"},
      "naceCode":           {"type": "keyword"},
      "industry":           {"type": "text"},
      "revenue":            {"type": "double"},
      "numberOfEmployees":  {"type": "integer"},
      "hasSubsidiaries":    {"type": "boolean"},
      "subsidiaryCount":    {"type": "integer"},
      "activeInitiatives":  {"type": "keyword"},
      "submittedAt":        {"type": "date"}
    }
  }
}`

// EnsureIndex creates the report index with its mapping when it is missing.
func (c *ElasticsearchClient) EnsureIndex(ctx context.Context) error {
	res, err := c.Client.Indices.Exists([]string{c.Index}, c.Client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", c.Index, err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("failed to check index %s: %s", c.Index, res.Status())
	}

	res, err = c.Client.Indices.Create(c.Index,
		c.Client.Indices.Create.WithContext(ctx),
		c.Client.Indices.Create.WithBody(strings.NewReader(reportMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", c.Index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to create index %s: %s", c.Index, res.Status())
	}
	return nil
}
