// Package metrics provides Prometheus metrics for audio capture sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "audiocapture"

// CaptureMetrics contains Prometheus metrics for capture sessions. A nil
// *CaptureMetrics records nothing.
type CaptureMetrics struct {
	framesCaptured *prometheus.CounterVec
	framesRead     *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	silenceEvents  *prometheus.CounterVec
	backendFaults  *prometheus.CounterVec
	operations     *prometheus.CounterVec
	recording      *prometheus.GaugeVec
	ringFill       *prometheus.GaugeVec
	readWait       prometheus.Histogram
	backendsLoaded prometheus.Gauge

	collectors []prometheus.Collector
}

// NewCaptureMetrics creates and registers capture metrics with registerer.
func NewCaptureMetrics(registerer prometheus.Registerer) (*CaptureMetrics, error) {
	m := &CaptureMetrics{}
	m.initMetrics()
	if err := registerer.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *CaptureMetrics) initMetrics() {
	sessionLabel := []string{"session_id"}

	m.framesCaptured = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_captured_total",
		Help:      "Frames delivered by the audio backend",
	}, sessionLabel)

	m.framesRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_read_total",
		Help:      "Frames handed to the consumer by read or callback",
	}, sessionLabel)

	m.framesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_dropped_total",
		Help:      "Frames overwritten because the reader fell behind",
	}, sessionLabel)

	m.silenceEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "silence_events_total",
		Help:      "Sustained silence detections",
	}, sessionLabel)

	m.backendFaults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_faults_total",
		Help:      "Devices that stopped without a stop request",
	}, []string{"backend"})

	m.operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Recorder operations by outcome status",
	}, []string{"operation", "status"})

	m.recording = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "recording",
		Help:      "1 while the session is recording",
	}, sessionLabel)

	m.ringFill = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ring_fill_ratio",
		Help:      "Buffered frames divided by ring capacity, sampled on read",
	}, sessionLabel)

	m.readWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "read_wait_seconds",
		Help:      "Time a blocking read waited for a frame",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	})

	m.backendsLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backends_loaded",
		Help:      "Live audio backend instances",
	})

	m.collectors = []prometheus.Collector{
		m.framesCaptured, m.framesRead, m.framesDropped, m.silenceEvents,
		m.backendFaults, m.operations, m.recording, m.ringFill, m.readWait,
		m.backendsLoaded,
	}
}

// Describe implements the Collector interface
func (m *CaptureMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *CaptureMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOperation counts one recorder operation with its outcome status name.
func (m *CaptureMetrics) RecordOperation(operation, status string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, status).Inc()
}

// RecordBackendFault counts a device failure on backend.
func (m *CaptureMetrics) RecordBackendFault(backend string) {
	if m == nil {
		return
	}
	m.backendFaults.WithLabelValues(backend).Inc()
}

// ObserveReadWait records how long a read blocked.
func (m *CaptureMetrics) ObserveReadWait(seconds float64) {
	if m == nil {
		return
	}
	m.readWait.Observe(seconds)
}

// BackendLoaded tracks backend instances as loaders create and close them.
func (m *CaptureMetrics) BackendLoaded(loaded bool) {
	if m == nil {
		return
	}
	if loaded {
		m.backendsLoaded.Inc()
		return
	}
	m.backendsLoaded.Dec()
}

// ForSession binds the per-session series once so the capture thread can
// update them without label lookups.
func (m *CaptureMetrics) ForSession(sessionID string) *SessionMetrics {
	if m == nil {
		return nil
	}
	return &SessionMetrics{
		parent:    m,
		sessionID: sessionID,
		captured:  m.framesCaptured.WithLabelValues(sessionID),
		read:      m.framesRead.WithLabelValues(sessionID),
		dropped:   m.framesDropped.WithLabelValues(sessionID),
		silence:   m.silenceEvents.WithLabelValues(sessionID),
		recording: m.recording.WithLabelValues(sessionID),
		ringFill:  m.ringFill.WithLabelValues(sessionID),
	}
}

// SessionMetrics holds the series of one session. A nil *SessionMetrics
// records nothing.
type SessionMetrics struct {
	parent    *CaptureMetrics
	sessionID string
	captured  prometheus.Counter
	read      prometheus.Counter
	dropped   prometheus.Counter
	silence   prometheus.Counter
	recording prometheus.Gauge
	ringFill  prometheus.Gauge
}

// FrameCaptured is safe to call on the capture thread.
func (s *SessionMetrics) FrameCaptured(overflowed bool) {
	if s == nil {
		return
	}
	s.captured.Inc()
	if overflowed {
		s.dropped.Inc()
	}
}

// FrameRead counts one frame handed to the consumer.
func (s *SessionMetrics) FrameRead() {
	if s == nil {
		return
	}
	s.read.Inc()
}

// Silence counts one silence detection.
func (s *SessionMetrics) Silence() {
	if s == nil {
		return
	}
	s.silence.Inc()
}

// SetRecording sets the recording gauge.
func (s *SessionMetrics) SetRecording(recording bool) {
	if s == nil {
		return
	}
	if recording {
		s.recording.Set(1)
		return
	}
	s.recording.Set(0)
}

// SetRingFill records the ring occupancy.
func (s *SessionMetrics) SetRingFill(buffered, capacity int) {
	if s == nil || capacity <= 0 {
		return
	}
	s.ringFill.Set(float64(buffered) / float64(capacity))
}

// Forget removes the session's series.
func (s *SessionMetrics) Forget() {
	if s == nil {
		return
	}
	m := s.parent
	m.framesCaptured.DeleteLabelValues(s.sessionID)
	m.framesRead.DeleteLabelValues(s.sessionID)
	m.framesDropped.DeleteLabelValues(s.sessionID)
	m.silenceEvents.DeleteLabelValues(s.sessionID)
	m.recording.DeleteLabelValues(s.sessionID)
	m.ringFill.DeleteLabelValues(s.sessionID)
}
