package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"course-notify/internal/common/config"
	"course-notify/internal/models"
	"course-notify/internal/notify/store"
	"course-notify/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyReportsFailingChecks(t *testing.T) {
	mux := newMux(map[string]func(context.Context) error{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("redis ping failed: connection refused") },
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Contains(t, body.Checks["redis"], "connection refused")
}

func TestHealthAndMetrics(t *testing.T) {
	mux := newMux(nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRuleTables(t *testing.T) {
	reg := &registry.Registry{MilestoneTables: []registry.MilestoneTable{
		{Name: registry.TableRenewal, Rules: []models.MilestoneRule{{Type: "renewal_30", OffsetDays: -30, Channel: models.ChannelEmail, TemplateID: "r30"}}},
		{Name: registry.TableRefresher, Rules: []models.MilestoneRule{{Type: "refresher_365", OffsetDays: 365, Channel: models.ChannelEmail, TemplateID: "f365"}}},
	}}
	mem := store.NewMemory()

	tables := ruleTables(reg, milestoneSources{
		renewal:    mem.LicenseExpirations(),
		refresher:  mem.CertificationIssues(),
		suppressor: mem.ActiveRenewalEnrollment(),
	})

	require.Len(t, tables, 2)
	assert.Equal(t, "renewal", tables[0].Name)
	assert.NotNil(t, tables[0].Suppressor)
	assert.Equal(t, "renewal_30", tables[0].Rules[0].Type)
	assert.Equal(t, "refresher", tables[1].Name)
	assert.Nil(t, tables[1].Suppressor)
}

func TestLoadRegistry(t *testing.T) {
	reg, err := loadRegistry("")
	require.NoError(t, err)
	assert.Empty(t, reg.MilestoneTables)

	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"milestoneTables":[{"name":"renewal","rules":[{"type":"x","channel":"fax","templateId":"t"}]}]}`), 0o600))
	_, err = loadRegistry(path)
	assert.ErrorContains(t, err, "channel: must be a valid value")
}

func TestDeliveryOptions(t *testing.T) {
	cfg := &config.Config{}
	cfg.Notifications.MeteredChannels = []string{"sms", "email"}
	cfg.Notifications.SendTimeoutMs = 2500
	cfg.Notifications.Bulk.Workers = 8
	cfg.Notifications.SMS.DefaultRegion = "CA"

	opts := deliveryOptions(cfg)
	assert.Equal(t, []models.Channel{models.ChannelSMS, models.ChannelEmail}, opts.MeteredChannels)
	assert.Equal(t, 2500*time.Millisecond, opts.SendTimeout)
	assert.Equal(t, 8, opts.Workers)
	assert.Equal(t, "CA", opts.DefaultRegion)
}
