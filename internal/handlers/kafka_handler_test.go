package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"flowtraced/pkg/flowtypes"
)

func TestNewKafkaHandlerRejectsMissingBrokers(t *testing.T) {
	_, err := NewKafkaHandler(flowtypes.KafkaHandlerConfig{Topic: "flows"}, nil)
	assert.Error(t, err)
}

func TestNewKafkaHandlerRejectsMissingTopic(t *testing.T) {
	_, err := NewKafkaHandler(flowtypes.KafkaHandlerConfig{Brokers: []string{"localhost:9092"}}, nil)
	assert.Error(t, err)
}

func TestKafkaHandlerRequiredMetricsIsBothFamilies(t *testing.T) {
	want := (&KafkaHandler{}).RequiredMetrics()
	assert.Len(t, want, 2)
	_, hasDirect := want[flowtypes.DirectLeaks]
	_, hasHeap := want[flowtypes.HeapLeaks]
	assert.True(t, hasDirect)
	assert.True(t, hasHeap)
}

func TestKafkaHandlerOnMetricsSkipsEmptySnapshot(t *testing.T) {
	var h KafkaHandler
	// No producer configured; OnMetrics must not touch it when there is
	// nothing to send.
	assert.NoError(t, h.OnMetrics(flowtypes.MetricSnapshot{}))
}
