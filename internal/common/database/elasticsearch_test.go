package database

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport answers requests with the given status codes in order.
type scriptedTransport struct {
	statuses []int
	requests []*http.Request
	bodies   []string
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.requests = append(s.requests, req)
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		s.bodies = append(s.bodies, string(b))
	}
	status := s.statuses[0]
	if len(s.statuses) > 1 {
		s.statuses = s.statuses[1:]
	}
	header := http.Header{}
	header.Set("X-Elastic-Product", "Elasticsearch")
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(`{}`)),
		Request:    req,
	}, nil
}

func newScriptedClient(t *testing.T, statuses ...int) (*ElasticsearchClient, *scriptedTransport) {
	t.Helper()
	transport := &scriptedTransport{statuses: statuses}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://localhost:9200"},
		Transport: transport,
	})
	require.NoError(t, err)
	return &ElasticsearchClient{Client: es, Index: "vsme-reports"}, transport
}

func TestElasticsearchClient_EnsureIndex(t *testing.T) {
	t.Run("creates missing index with mapping", func(t *testing.T) {
		client, transport := newScriptedClient(t, http.StatusNotFound, http.StatusOK)

		require.NoError(t, client.EnsureIndex(context.Background()))

		require.Len(t, transport.requests, 2)
		assert.Equal(t, http.MethodHead, transport.requests[0].Method)
		assert.Equal(t, "/vsme-reports", transport.requests[0].URL.Path)
		assert.Equal(t, http.MethodPut, transport.requests[1].Method)
		assert.Equal(t, "/vsme-reports", transport.requests[1].URL.Path)
		require.NotEmpty(t, transport.bodies)
		assert.Contains(t, transport.bodies[len(transport.bodies)-1], `"activeInitiatives"`)
	})

	t.Run("existing index is left alone", func(t *testing.T) {
		client, transport := newScriptedClient(t, http.StatusOK)

		require.NoError(t, client.EnsureIndex(context.Background()))
		assert.Len(t, transport.requests, 1)
	})

	t.Run("create failure is reported", func(t *testing.T) {
		client, _ := newScriptedClient(t, http.StatusNotFound, http.StatusBadRequest)

		err := client.EnsureIndex(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create index vsme-reports")
	})

	t.Run("unexpected status on check", func(t *testing.T) {
		client, _ := newScriptedClient(t, http.StatusForbidden)

		assert.Error(t, client.EnsureIndex(context.Background()))
	})
}
