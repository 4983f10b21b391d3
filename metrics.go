package mqttsn

import (
	"time"
)

// MetricLabels represents key-value pairs for metric labels.
type MetricLabels map[string]string

// Metrics defines the interface for collecting metrics.
type Metrics interface {
	// Counter returns a counter metric.
	Counter(name string, labels MetricLabels) Counter

	// Gauge returns a gauge metric.
	Gauge(name string, labels MetricLabels) Gauge

	// Histogram returns a histogram metric.
	Histogram(name string, labels MetricLabels) Histogram
}

// Counter is a monotonically increasing counter.
type Counter interface {
	// Inc increments the counter by 1.
	Inc()

	// Add adds the given value to the counter.
	Add(delta float64)

	// Value returns the current value.
	Value() float64
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	// Set sets the gauge to the given value.
	Set(value float64)

	// Inc increments the gauge by 1.
	Inc()

	// Dec decrements the gauge by 1.
	Dec()

	// Add adds the given value to the gauge.
	Add(delta float64)

	// Sub subtracts the given value from the gauge.
	Sub(delta float64)

	// Value returns the current value.
	Value() float64
}

// Histogram tracks the distribution of values.
type Histogram interface {
	// Observe records a value.
	Observe(value float64)

	// ObserveDuration records a duration in seconds.
	ObserveDuration(d time.Duration)

	// Count returns the number of observations.
	Count() uint64

	// Sum returns the sum of all observations.
	Sum() float64
}

// NoOpMetrics is a no-op implementation of Metrics.
type NoOpMetrics struct{}

// Counter returns a no-op counter.
func (n *NoOpMetrics) Counter(_ string, _ MetricLabels) Counter {
	return &noOpCounter{}
}

// Gauge returns a no-op gauge.
func (n *NoOpMetrics) Gauge(_ string, _ MetricLabels) Gauge {
	return &noOpGauge{}
}

// Histogram returns a no-op histogram.
func (n *NoOpMetrics) Histogram(_ string, _ MetricLabels) Histogram {
	return &noOpHistogram{}
}

type noOpCounter struct{}

func (n *noOpCounter) Inc()           {}
func (n *noOpCounter) Add(_ float64)  {}
func (n *noOpCounter) Value() float64 { return 0 }

type noOpGauge struct{}

func (n *noOpGauge) Set(_ float64)  {}
func (n *noOpGauge) Inc()           {}
func (n *noOpGauge) Dec()           {}
func (n *noOpGauge) Add(_ float64)  {}
func (n *noOpGauge) Sub(_ float64)  {}
func (n *noOpGauge) Value() float64 { return 0 }

type noOpHistogram struct{}

func (n *noOpHistogram) Observe(_ float64)               {}
func (n *noOpHistogram) ObserveDuration(_ time.Duration) {}
func (n *noOpHistogram) Count() uint64                   { return 0 }
func (n *noOpHistogram) Sum() float64                    { return 0 }

// Standard metric names for MQTT-SN runtimes.
const (
	// MetricPeers is the current number of known peers.
	MetricPeers = "mqttsn_peers"

	// MetricConnectionsTotal is the total number of connections.
	MetricConnectionsTotal = "mqttsn_connections_total"

	// MetricMessagesReceived is the total number of messages received.
	MetricMessagesReceived = "mqttsn_messages_received_total"

	// MetricMessagesSent is the total number of messages sent.
	MetricMessagesSent = "mqttsn_messages_sent_total"

	// MetricBytesReceived is the total bytes received.
	MetricBytesReceived = "mqttsn_bytes_received_total"

	// MetricBytesSent is the total bytes sent.
	MetricBytesSent = "mqttsn_bytes_sent_total"

	// MetricSubscriptions is the current number of subscriptions.
	MetricSubscriptions = "mqttsn_subscriptions"

	// MetricQueueDepth is the aggregate send queue depth.
	MetricQueueDepth = "mqttsn_queue_depth"
)

// Standard metric labels.
const (
	// LabelMessageType is the message type label.
	LabelMessageType = "message_type"

	// LabelQoS is the QoS level label.
	LabelQoS = "qos"

	// LabelReturnCode is the return code label.
	LabelReturnCode = "return_code"

	// LabelClientID is the client ID label.
	LabelClientID = "client_id"

	// LabelTopic is the topic label.
	LabelTopic = "topic"
)

// GatewayMetrics provides convenience methods for common gateway
// metrics.
type GatewayMetrics struct {
	metrics Metrics
}

// NewGatewayMetrics creates a new GatewayMetrics instance.
func NewGatewayMetrics(m Metrics) *GatewayMetrics {
	return &GatewayMetrics{metrics: m}
}

// PeerConnected records a new peer connection.
func (g *GatewayMetrics) PeerConnected() {
	g.metrics.Gauge(MetricPeers, nil).Inc()
	g.metrics.Counter(MetricConnectionsTotal, nil).Inc()
}

// PeerDisconnected records a peer disconnect.
func (g *GatewayMetrics) PeerDisconnected() {
	g.metrics.Gauge(MetricPeers, nil).Dec()
}

// MessageReceived records a received message.
func (g *GatewayMetrics) MessageReceived(t MessageType) {
	labels := MetricLabels{LabelMessageType: t.String()}
	g.metrics.Counter(MetricMessagesReceived, labels).Inc()
}

// MessageSent records a sent message.
func (g *GatewayMetrics) MessageSent(t MessageType) {
	labels := MetricLabels{LabelMessageType: t.String()}
	g.metrics.Counter(MetricMessagesSent, labels).Inc()
}

// BytesReceived records received bytes.
func (g *GatewayMetrics) BytesReceived(n int) {
	g.metrics.Counter(MetricBytesReceived, nil).Add(float64(n))
}

// BytesSent records sent bytes.
func (g *GatewayMetrics) BytesSent(n int) {
	g.metrics.Counter(MetricBytesSent, nil).Add(float64(n))
}

// SubscriptionAdded records a new subscription.
func (g *GatewayMetrics) SubscriptionAdded() {
	g.metrics.Gauge(MetricSubscriptions, nil).Inc()
}

// SubscriptionRemoved records a removed subscription.
func (g *GatewayMetrics) SubscriptionRemoved() {
	g.metrics.Gauge(MetricSubscriptions, nil).Dec()
}
