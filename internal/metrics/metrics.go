package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex            sync.RWMutex
	requests         int64
	rejections       map[int]int64
	upstreamCalls    int64
	upstreamFailures int64
	statusCodes      map[int]int64
	responseTimes    []time.Duration
	startTime        time.Time
}

type Snapshot struct {
	TotalRequests int64           `json:"total_requests"`
	Uptime        time.Duration   `json:"uptime"`
	Model         string          `json:"model"`
	Rejected      map[int]int64   `json:"rejected"`
	Upstream      UpstreamMetrics `json:"upstream"`
}

// UpstreamMetrics covers outbound calls. Latency figures are computed over
// the most recent calls, failures included.
type UpstreamMetrics struct {
	Calls       int64         `json:"calls"`
	Failures    int64         `json:"failures"`
	StatusCodes map[int]int64 `json:"status_codes"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
}

func (m *Metrics) IncrementRequests() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests++
}

func (m *Metrics) RecordRejection(statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejections[statusCode]++
}

func (m *Metrics) RecordUpstreamResponse(duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.upstreamCalls++
	m.statusCodes[statusCode]++
	m.recordDuration(duration)
}

func (m *Metrics) RecordUpstreamFailure(duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.upstreamCalls++
	m.upstreamFailures++
	m.recordDuration(duration)
}

// recordDuration must be called with the write lock held.
func (m *Metrics) recordDuration(duration time.Duration) {
	m.responseTimes = append(m.responseTimes, duration)

	if len(m.responseTimes) > maxSamples {
		m.responseTimes = m.responseTimes[1:]
	}
}

func (m *Metrics) Snapshot(model string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		TotalRequests: m.requests,
		Uptime:        time.Since(m.startTime),
		Model:         model,
		Rejected:      make(map[int]int64, len(m.rejections)),
		Upstream: UpstreamMetrics{
			Calls:       m.upstreamCalls,
			Failures:    m.upstreamFailures,
			StatusCodes: make(map[int]int64, len(m.statusCodes)),
		},
	}

	for code, n := range m.rejections {
		snap.Rejected[code] = n
	}
	for code, n := range m.statusCodes {
		snap.Upstream.StatusCodes[code] = n
	}

	if len(m.responseTimes) > 0 {
		sorted := make([]time.Duration, len(m.responseTimes))
		copy(sorted, m.responseTimes)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i] < sorted[j]
		})

		snap.Upstream.AvgResponse = average(sorted)
		snap.Upstream.P50Response = percentile(sorted, 0.50)
		snap.Upstream.P95Response = percentile(sorted, 0.95)
		snap.Upstream.P99Response = percentile(sorted, 0.99)
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		rejections:  make(map[int]int64),
		statusCodes: make(map[int]int64),
		startTime:   time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
