package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/aperez/cmb-readout/internal/config"
	"github.com/aperez/cmb-readout/internal/domain/run"
	"github.com/aperez/cmb-readout/internal/logger"
)

// connectTimeout bounds the initial broker handshake so a dead broker
// cannot delay the start of a run for long.
const connectTimeout = 5 * time.Second

// MQTT publishes each sample as JSON on <prefix>/<run-id>/sample.
type MQTT struct {
	// client is the connected paho client.
	client mqtt.Client
	// topicPrefix is prepended to run-scoped topics.
	topicPrefix string
}

// samplePayload is the JSON wire form of one published sample.
type samplePayload struct {
	RunID     string  `json:"run_id"`
	ElapsedMs int64   `json:"elapsed_ms"`
	Value     float64 `json:"value"`
}

// NewMQTT connects to the configured broker.
func NewMQTT(cfg config.TelemetryConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(connectTimeout)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.BrokerURL, token.Error())
	}

	return &MQTT{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
	}, nil
}

// PublishSample sends one reading, fire and forget. Errors are logged at
// warn level and otherwise ignored.
func (m *MQTT) PublishSample(ctx context.Context, runID string, sample run.Sample) {
	payload, err := json.Marshal(samplePayload{
		RunID:     runID,
		ElapsedMs: sample.Elapsed.Milliseconds(),
		Value:     sample.Value,
	})
	if err != nil {
		logger.WarnKV(ctx, "Failed to encode telemetry sample", "error", err)

		return
	}

	topic := m.topicPrefix + "/" + runID + "/sample"

	token := m.client.Publish(topic, 0, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			logger.WarnKV(ctx, "Failed to publish telemetry sample", "topic", topic, "error", token.Error())
		}
	}()
}

// Close disconnects from the broker, allowing in-flight messages to drain.
func (m *MQTT) Close() {
	const drainMillis = 250

	m.client.Disconnect(drainMillis)
}
