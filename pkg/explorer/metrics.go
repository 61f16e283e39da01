package explorer

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateMetric is returned when a metric name is published twice in
// one exploration.
var ErrDuplicateMetric = errors.New("duplicate metric")

// Metric is one named result of an exploration.
type Metric struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// MetricSet collects the metrics of one exploration in publication order.
// It is safe for concurrent use.
type MetricSet struct {
	mu      sync.Mutex
	order   []Metric
	names   map[string]struct{}
	changed chan struct{}
	closed  bool
}

func NewMetricSet() *MetricSet {
	return &MetricSet{names: make(map[string]struct{}), changed: make(chan struct{})}
}

// Add inserts all metrics or none of them.
func (s *MetricSet) Add(ms ...Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make(map[string]struct{}, len(ms))
	for _, m := range ms {
		if _, ok := s.names[m.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateMetric, m.Name)
		}
		if _, ok := batch[m.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateMetric, m.Name)
		}
		batch[m.Name] = struct{}{}
	}
	if len(ms) == 0 {
		return nil
	}
	for _, m := range ms {
		s.names[m.Name] = struct{}{}
		s.order = append(s.order, m)
	}
	close(s.changed)
	s.changed = make(chan struct{})
	return nil
}

// Snapshot copies the metrics published so far.
func (s *MetricSet) Snapshot() []Metric {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Metric(nil), s.order...)
}

func (s *MetricSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Get returns the metric with the given name.
func (s *MetricSet) Get(name string) (Metric, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.order {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// since returns metrics from position i on, a channel closed by the next
// change, and whether the set is final.
func (s *MetricSet) since(i int) ([]Metric, <-chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Metric
	if i < len(s.order) {
		out = append(out, s.order[i:]...)
	}
	return out, s.changed, s.closed
}

// close marks the set final and wakes every watcher.
func (s *MetricSet) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.changed)
	s.changed = make(chan struct{})
}
