package core

import (
	"sync"
	"time"
)

const AVG_COUNT uint8 = 30

// Metrics keeps a rolling average over the last AVG_COUNT samples of
// object construction time, plus a running total of samples seen.
type Metrics struct {
	mu         sync.Mutex
	avgCounter uint8
	samplesMS  [AVG_COUNT]float64
	filled     uint8
	msAvg      float64
	count      uint64
	totalMS    float64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Update(elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms := float64(elapsed) / float64(time.Millisecond)
	m.samplesMS[m.avgCounter] = ms
	m.avgCounter++
	m.avgCounter %= AVG_COUNT
	if m.filled < AVG_COUNT {
		m.filled++
	}

	sum := 0.0
	for i := uint8(0); i < m.filled; i++ {
		sum += m.samplesMS[i]
	}
	m.msAvg = sum / float64(m.filled)

	m.count++
	m.totalMS += ms
}

// AverageMS returns the rolling average in milliseconds.
func (m *Metrics) AverageMS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.msAvg
}

func (m *Metrics) Count() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *Metrics) TotalMS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalMS
}
