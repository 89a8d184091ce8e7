package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherMetricNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	return names
}

func TestProducerMetrics_Registered(t *testing.T) {
	ProducerMessagesPublished.WithLabelValues("test-topic", "test.event")
	ProducerPublishErrors.WithLabelValues("test-topic", "broker")
	ProducerPublishDuration.WithLabelValues("test-topic")
	ProducerMessageBytes.WithLabelValues("test-topic")

	names := gatherMetricNames(t)
	for _, name := range []string{
		"kafka_producer_messages_published_total",
		"kafka_producer_publish_errors_total",
		"kafka_producer_publish_duration_seconds",
		"kafka_producer_message_bytes",
	} {
		assert.True(t, names[name], "expected metric %q to be registered", name)
	}
}

func TestProducerMetrics_PublishCountsByEventType(t *testing.T) {
	topic := "metrics-test-succeeded"
	counter := ProducerMessagesPublished.WithLabelValues(topic, "checkout.succeeded")
	before := testutil.ToFloat64(counter)

	p := NewProducerWithWriter(&recordingWriter{}, nil, nil)
	event, err := NewEvent("checkout.succeeded", "sess-9", "checkout_session", "storefront-checkout", nil)
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), topic, event))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestProducerMetrics_PublishErrorReason(t *testing.T) {
	tests := []struct {
		err    error
		reason string
	}{
		{err: errors.New("leader not available"), reason: "broker"},
		{err: fmt.Errorf("write: %w", context.DeadlineExceeded), reason: "timeout"},
		{err: context.Canceled, reason: "canceled"},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			topic := "metrics-test-errors-" + tt.reason
			counter := ProducerPublishErrors.WithLabelValues(topic, tt.reason)
			before := testutil.ToFloat64(counter)

			p := NewProducerWithWriter(&recordingWriter{err: tt.err}, nil, nil)
			event, err := NewEvent("checkout.failed", "sess-1", "checkout_session", "storefront-checkout", nil)
			require.NoError(t, err)
			require.Error(t, p.Publish(context.Background(), topic, event))

			assert.Equal(t, before+1, testutil.ToFloat64(counter))
		})
	}
}
