package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"course-notify/internal/common/logger"
	"course-notify/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTransport answers every request with status and records what it saw.
type stubTransport struct {
	mu       sync.Mutex
	status   int
	byMethod map[string]int
	err      error
	requests []*http.Request
	bodies   []string
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	var body string
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		body = string(b)
	}
	s.requests = append(s.requests, req)
	s.bodies = append(s.bodies, body)

	code := s.status
	if c, ok := s.byMethod[req.Method]; ok {
		code = c
	}

	header := http.Header{}
	header.Set("X-Elastic-Product", "Elasticsearch")
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: code,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(`{"result":"created"}`)),
	}, nil
}

func newAuditor(t *testing.T, tr *stubTransport) *ElasticsearchAuditor {
	t.Helper()
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://es.local:9200"},
		Transport: tr,
	})
	require.NoError(t, err)
	return NewElasticsearchAuditor(client, "notification-deliveries", logger.NewTestLogger(t))
}

func deliveryLog() models.DeliveryLog {
	done := time.Date(2026, 10, 15, 7, 0, 1, 0, time.UTC)
	return models.DeliveryLog{
		ID:                "dlv_01jab",
		TemplateID:        "welcome",
		RecipientID:       "stu-1",
		Channel:           models.ChannelEmail,
		Status:            models.DeliverySent,
		ToAddress:         "ada@example.com",
		ExternalReference: "ses-123",
		CreatedAt:         done.Add(-time.Second),
		CompletedAt:       &done,
	}
}

func TestRecord_IndexesByDeliveryID(t *testing.T) {
	tr := &stubTransport{status: http.StatusCreated}
	newAuditor(t, tr).Record(context.Background(), deliveryLog())

	require.Len(t, tr.requests, 1)
	req := tr.requests[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/notification-deliveries/_doc/dlv_01jab", req.URL.Path)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(tr.bodies[0]), &doc))
	assert.Equal(t, "sent", doc["status"])
	assert.Equal(t, "ses-123", doc["externalReference"])
	assert.Contains(t, doc, "recordedAt")
}

func TestRecord_SwallowsFailures(t *testing.T) {
	tests := []struct {
		name string
		tr   *stubTransport
	}{
		{"rejected", &stubTransport{status: http.StatusBadRequest}},
		{"unreachable", &stubTransport{err: errors.New("connection refused")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				newAuditor(t, tt.tr).Record(context.Background(), deliveryLog())
			})
		})
	}
}

func TestEnsureIndex_CreatesMissingIndex(t *testing.T) {
	tr := &stubTransport{byMethod: map[string]int{http.MethodHead: http.StatusNotFound, http.MethodPut: http.StatusOK}}
	require.NoError(t, newAuditor(t, tr).EnsureIndex(context.Background()))

	require.Len(t, tr.requests, 2)
	assert.Equal(t, http.MethodPut, tr.requests[1].Method)
	assert.Equal(t, "/notification-deliveries", tr.requests[1].URL.Path)

	var mapping struct {
		Mappings struct {
			Properties map[string]struct {
				Type string `json:"type"`
			} `json:"properties"`
		} `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal([]byte(tr.bodies[1]), &mapping))
	assert.Equal(t, "keyword", mapping.Mappings.Properties["recipientId"].Type)
	assert.Equal(t, "date", mapping.Mappings.Properties["completedAt"].Type)
}

func TestEnsureIndex_LeavesExistingIndex(t *testing.T) {
	tr := &stubTransport{status: http.StatusOK}
	require.NoError(t, newAuditor(t, tr).EnsureIndex(context.Background()))
	require.Len(t, tr.requests, 1)
	assert.Equal(t, http.MethodHead, tr.requests[0].Method)
}

func TestEnsureIndex_ReportsFailures(t *testing.T) {
	tr := &stubTransport{byMethod: map[string]int{http.MethodHead: http.StatusNotFound, http.MethodPut: http.StatusForbidden}}
	err := newAuditor(t, tr).EnsureIndex(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
