package rtc

import (
	"sync"
	"time"
)

// Sample is one periodic connection-quality measurement.
type Sample struct {
	Timestamp     time.Time `json:"timestamp"`
	Quality       Quality   `json:"-"`
	QualityLabel  string    `json:"quality"`
	VideoLost     int64     `json:"videoPacketsLost"`
	AudioLost     int64     `json:"audioPacketsLost"`
	JitterSeconds float64   `json:"jitter"`
}

// MetricsRing provides thread-safe storage for quality samples with a fixed
// capacity; old samples are overwritten once full.
type MetricsRing struct {
	mu       sync.RWMutex
	data     []Sample
	capacity int
	size     int
	head     int // next write position
	tail     int // oldest element
}

// NewMetricsRing creates a ring with the specified capacity.
func NewMetricsRing(capacity int) *MetricsRing {
	return &MetricsRing{
		data:     make([]Sample, capacity),
		capacity: capacity,
	}
}

// Add appends a sample, evicting the oldest when full.
func (r *MetricsRing) Add(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[r.head] = s
	r.head = (r.head + 1) % r.capacity

	if r.size < r.capacity {
		r.size++
	} else {
		r.tail = (r.tail + 1) % r.capacity
	}
}

// Recent returns the most recent n samples, newest first.
func (r *MetricsRing) Recent(n int) []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.size {
		n = r.size
	}

	result := make([]Sample, n)
	pos := (r.head - 1 + r.capacity) % r.capacity
	for i := 0; i < n; i++ {
		result[i] = r.data[pos]
		pos = (pos - 1 + r.capacity) % r.capacity
	}
	return result
}

// Size returns the current number of stored samples.
func (r *MetricsRing) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}
