package metrics

import (
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Backend that keeps totals; used by tests and by
// the CLI's end-of-run summary.
type Memory struct {
	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string][]float64
}

func NewMemory() *Memory {
	return &Memory{
		counters:   make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// Key renders name{k=v,...} with labels sorted by key.
func Key(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(labels[k])
	}
	b.WriteString("}")
	return b.String()
}

func (m *Memory) IncCounter(name string, delta float64, labels Labels) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[Key(name, labels)] += delta
}

func (m *Memory) ObserveHistogram(name string, value float64, labels Labels) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := Key(name, labels)
	m.histograms[k] = append(m.histograms[k], value)
}

func (m *Memory) Flush() error { return nil }

// Counter returns the total for name and labels.
func (m *Memory) Counter(name string, labels Labels) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[Key(name, labels)]
}

// Samples returns the number of histogram observations for name and labels.
func (m *Memory) Samples(name string, labels Labels) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.histograms[Key(name, labels)])
}

// Counters returns a copy of every counter keyed by Key().
func (m *Memory) Counters() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}
