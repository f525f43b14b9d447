// Package audit mirrors finished delivery logs into Elasticsearch for
// search and support lookups.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"course-notify/internal/common/logger"
	"course-notify/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

const defaultTimeout = 2 * time.Second

// ElasticsearchAuditor indexes one document per delivery, keyed by the
// delivery id, so a repeated Record overwrites rather than duplicates.
type ElasticsearchAuditor struct {
	client  *elasticsearch.Client
	index   string
	timeout time.Duration
	logger  logger.Logger
}

func NewElasticsearchAuditor(client *elasticsearch.Client, index string, log logger.Logger) *ElasticsearchAuditor {
	return &ElasticsearchAuditor{
		client:  client,
		index:   index,
		timeout: defaultTimeout,
		logger:  logger.ForComponent(log, "audit"),
	}
}

// indexMapping keeps identifiers and enums exact-match so support lookups by
// recipient, template or provider reference hit the inverted index directly.
const indexMapping = `{
  "mappings": {
    "properties": {
      "id":                 {"type": "keyword"},
      "templateId":         {"type": "keyword"},
      "recipientId":        {"type": "keyword"},
      "channel":            {"type": "keyword"},
      "status":             {"type": "keyword"},
      "toAddress":          {"type": "keyword"},
      "externalReference":  {"type": "keyword"},
      "debitTransactionId": {"type": "keyword"},
      "resolvedSubject":    {"type": "text"},
      "resolvedBody":       {"type": "text"},
      "error":              {"type": "text"},
      "createdAt":          {"type": "date"},
      "completedAt":        {"type": "date"},
      "recordedAt":         {"type": "date"}
    }
  }
}`

// EnsureIndex creates the audit index with its mapping unless it exists.
func (a *ElasticsearchAuditor) EnsureIndex(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	res, err := a.client.Indices.Exists([]string{a.index}, a.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check audit index %s: %w", a.index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = a.client.Indices.Create(a.index,
		a.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		a.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create audit index %s: %w", a.index, err)
	}
	defer res.Body.Close()

	// A concurrent engine may have created it between the two calls.
	if res.IsError() && res.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("create audit index %s: %s", a.index, res.Status())
	}
	a.logger.Info("audit index ready", map[string]interface{}{"index": a.index})
	return nil
}

type document struct {
	models.DeliveryLog
	RecordedAt time.Time `json:"recordedAt"`
}

// Record never returns an error; indexing failures are logged.
func (a *ElasticsearchAuditor) Record(ctx context.Context, l models.DeliveryLog) {
	log := a.logger.WithFields(map[string]interface{}{"deliveryId": l.ID, "index": a.index})

	body, err := json.Marshal(document{DeliveryLog: l, RecordedAt: time.Now().UTC()})
	if err != nil {
		log.Error("could not encode audit document", map[string]interface{}{"error": err})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	res, err := a.client.Index(
		a.index,
		bytes.NewReader(body),
		a.client.Index.WithDocumentID(l.ID),
		a.client.Index.WithContext(ctx),
	)
	if err != nil {
		log.Warn("audit index request failed", map[string]interface{}{"error": err})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Warn("audit index rejected", map[string]interface{}{"status": res.Status()})
		return
	}
	log.Debug("delivery audited", map[string]interface{}{"status": string(l.Status)})
}
