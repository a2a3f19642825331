package pipeline

import (
	"sync"
	"time"
)

// Metrics tracks per-session frame accounting.
type Metrics struct {
	mu sync.RWMutex

	FramesCaptured  uint64
	FramesPublished uint64
	FramesDropped   uint64
	FramesReplaced  uint64
	FramesStalled   uint64
	FramesPresented uint64
	RedrawsSkipped  uint64

	LastCaptureTime time.Duration
	LastConvertTime time.Duration
	LastLatency     time.Duration
	startTime       time.Time
}

func newMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) RecordCapture(capture, convert time.Duration) {
	m.mu.Lock()
	m.FramesCaptured++
	m.LastCaptureTime = capture
	m.LastConvertTime = convert
	m.mu.Unlock()
}

func (m *Metrics) RecordPublish() {
	m.mu.Lock()
	m.FramesPublished++
	m.mu.Unlock()
}

func (m *Metrics) RecordDrop() {
	m.mu.Lock()
	m.FramesDropped++
	m.mu.Unlock()
}

func (m *Metrics) RecordReplace() {
	m.mu.Lock()
	m.FramesReplaced++
	m.mu.Unlock()
}

func (m *Metrics) RecordStall() {
	m.mu.Lock()
	m.FramesStalled++
	m.mu.Unlock()
}

func (m *Metrics) RecordSkip() {
	m.mu.Lock()
	m.RedrawsSkipped++
	m.mu.Unlock()
}

// RecordPresent counts a frame put on screen; latency is measured from
// the end of its capture.
func (m *Metrics) RecordPresent(latency time.Duration) {
	m.mu.Lock()
	m.FramesPresented++
	m.LastLatency = latency
	m.mu.Unlock()
}

// MetricsSnapshot is a point-in-time copy of metrics for logging.
type MetricsSnapshot struct {
	FramesCaptured  uint64
	FramesPublished uint64
	FramesDropped   uint64
	FramesReplaced  uint64
	FramesStalled   uint64
	FramesPresented uint64
	RedrawsSkipped  uint64
	CaptureMs       float64
	ConvertMs       float64
	LatencyMs       float64
	AverageFPS      float64
	Uptime          time.Duration
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uptime := time.Since(m.startTime)
	fps := float64(0)
	if uptime.Seconds() > 0 {
		fps = float64(m.FramesPresented) / uptime.Seconds()
	}

	return MetricsSnapshot{
		FramesCaptured:  m.FramesCaptured,
		FramesPublished: m.FramesPublished,
		FramesDropped:   m.FramesDropped,
		FramesReplaced:  m.FramesReplaced,
		FramesStalled:   m.FramesStalled,
		FramesPresented: m.FramesPresented,
		RedrawsSkipped:  m.RedrawsSkipped,
		CaptureMs:       float64(m.LastCaptureTime.Microseconds()) / 1000.0,
		ConvertMs:       float64(m.LastConvertTime.Microseconds()) / 1000.0,
		LatencyMs:       float64(m.LastLatency.Microseconds()) / 1000.0,
		AverageFPS:      fps,
		Uptime:          uptime,
	}
}

// LogArgs flattens the snapshot into slog key/value pairs.
func (s MetricsSnapshot) LogArgs() []any {
	return []any{
		"captured", s.FramesCaptured,
		"published", s.FramesPublished,
		"presented", s.FramesPresented,
		"dropped", s.FramesDropped,
		"replaced", s.FramesReplaced,
		"stalled", s.FramesStalled,
		"redrawsSkipped", s.RedrawsSkipped,
		"avgFps", s.AverageFPS,
		"uptime", s.Uptime.Round(time.Millisecond).String(),
	}
}
