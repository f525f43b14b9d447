package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan_ExportsNamedSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	obs := NewWithExporter("notify-test", exporter)
	defer obs.Shutdown()

	_, span := obs.StartSpan(context.Background(), "delivery.send", attribute.String("channel", "sms"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "delivery.send", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.String("channel", "sms"))
}

func TestNilObservabilityIsSafe(t *testing.T) {
	var obs *Observability
	ctx := context.Background()

	_, span := obs.StartSpan(ctx, "noop")
	span.End()

	assert.NotPanics(t, func() {
		obs.RecordDelivery(ctx, "email", "sent")
		obs.RecordCredit(ctx, "debit", 1)
		obs.RecordJobProcessed(ctx, "ok")
		obs.RecordJobDuration(ctx, time.Second, "ok")
		obs.Shutdown()
	})
}
