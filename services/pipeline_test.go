package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"unplug/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type pipeline struct {
	bus        *MemoryBus
	dispatcher *InterventionDispatcher
	engine     *InsightEngine
	monitor    *SystemHealthMonitor
	traffic    *collector
}

func newPipeline(t *testing.T) *pipeline {
	cfg := testConfig(t)
	cfg.Transport = "memory"
	logger := zaptest.NewLogger(t)

	bus := NewMemoryBus(cfg.BusBufferSize, logger)
	engine := NewInsightEngine(cfg, logger)
	dispatcher := NewInterventionDispatcher(cfg, logger)

	edge := NewEdgeService(cfg, bus, NewMetricCalculator(cfg), engine, logger)
	cloud := NewCloudService(cfg, bus, NewTrendAggregator(cfg, dispatcher, logger), logger)
	home := NewSmartHomeService(cfg, bus, dispatcher, logger)
	monitor := NewSystemHealthMonitor(cfg, bus, logger)

	require.NoError(t, edge.Subscribe())
	require.NoError(t, cloud.Subscribe())
	require.NoError(t, home.Subscribe())
	require.NoError(t, monitor.Subscribe())

	traffic := &collector{}
	require.NoError(t, bus.Subscribe(cfg.TopicPrefix+"/#", traffic.handle))

	require.NoError(t, bus.Connect(context.Background()))
	t.Cleanup(func() { _ = bus.Disconnect() })

	return &pipeline{bus: bus, dispatcher: dispatcher, engine: engine, monitor: monitor, traffic: traffic}
}

func (p *pipeline) publish(t *testing.T, topic string, v any) {
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, p.bus.Publish(topic, payload))
}

func (p *pipeline) seen(topic string) bool {
	for _, got := range p.traffic.Topics() {
		if got == topic {
			return true
		}
	}
	return false
}

func lateNightObservation() models.Observation {
	sample := *quietSample(time.Date(2026, 5, 4, 23, 30, 0, 0, time.UTC), 0.5)
	sample.AppUsage = map[string]float64{"social_media": 0.5}
	return models.Observation{EntityID: "user_001", Sample: sample}
}

func TestPipelineLateNightObservationReachesSmartHome(t *testing.T) {
	p := newPipeline(t)
	p.publish(t, "iot/digitaltwin/behavior", lateNightObservation())

	for _, topic := range []string{
		"iot/edge/processed",
		"iot/edge/insights",
		"iot/cloud/trends",
		"iot/cloud/recommendations",
		"iot/cloud/summary",
		"iot/smart_home/status",
	} {
		topic := topic
		require.Eventually(t, func() bool { return p.seen(topic) }, 2*time.Second, 10*time.Millisecond, topic)
	}

	states := p.dispatcher.DeviceStates()
	require.Contains(t, states, DeviceSmartLights)
	assert.Equal(t, "night_mode", states[DeviceSmartLights].Action)

	require.Eventually(t, func() bool {
		components := p.monitor.ComponentSummary().Components
		_, edge := components[ComponentEdgeLayer]
		_, cloud := components[ComponentCloudLayer]
		_, home := components[ComponentSmartHome]
		return edge && cloud && home
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPipelineInvalidTelemetryIsDataLoss(t *testing.T) {
	p := newPipeline(t)
	require.NoError(t, p.bus.Publish("iot/digitaltwin/behavior", []byte(`{"entity_id":"user_001"`)))

	require.Eventually(t, func() bool {
		for _, row := range p.monitor.ErrorAnalysis().TopErrorTypes {
			if row.Type == "malformed error" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, p.monitor.ErrorAnalysis().DataLossEvents)
	assert.InDelta(t, 0.5, p.monitor.Evaluate().DataLossRate, 1e-9)
	assert.False(t, p.seen("iot/edge/processed"))
}

func TestPipelineRejectedObservationIsDataLoss(t *testing.T) {
	p := newPipeline(t)
	p.publish(t, "iot/digitaltwin/behavior", models.Observation{Sample: *quietSample(day(10, 0), 0.2)})

	require.Eventually(t, func() bool {
		return p.monitor.ErrorAnalysis().DataLossEvents == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, p.monitor.ErrorAnalysis().DataLossEvents)
	assert.Zero(t, p.monitor.ErrorAnalysis().TotalErrors)
}

func TestPipelineControlUpdatesThreshold(t *testing.T) {
	p := newPipeline(t)
	p.publish(t, "iot/digitaltwin/control", models.ControlCommand{
		Type:     models.CommandUpdateThreshold,
		EntityID: "user_001",
		Value:    6,
	})

	require.Eventually(t, func() bool {
		return p.engine.Thresholds("user_001").DailyOveruseHours == 6
	}, 2*time.Second, 10*time.Millisecond)
}
