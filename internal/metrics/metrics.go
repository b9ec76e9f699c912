// Package metrics is the backend-agnostic metrics surface of the pipeline.
//
// Pipeline code records through the package-level helpers; the process picks
// one Backend at startup (SetBackend). Until then every call is a no-op.
package metrics

import (
	"sync"
	"time"
)

// Metric names. Backends map them onto their own naming scheme.
const (
	StepTotal           = "etl_step_total"            // labels: step, status
	StepDurationSeconds = "etl_step_duration_seconds" // labels: step, status
	RecordsTotal        = "etl_records_total"         // labels: kind
	BatchesTotal        = "etl_batches_total"
	RowsWrittenTotal    = "etl_rows_written_total"      // labels: table
	FactSkippedTotal    = "etl_fact_skipped_total"      // labels: reason
	InsertDuration      = "etl_insert_duration_seconds" // labels: table
)

type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. nil restores the no-op.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush asks the current backend to submit buffered data.
func Flush() error {
	return current().Flush()
}

// RecordStep records one finished pipeline step.
func RecordStep(step, status string, d time.Duration) {
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRecords counts n records of a kind (staged, rejected, fact_seen...).
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordBatch counts one INSERT batch against table and its duration.
func RecordBatch(table string, rows int64, d time.Duration) {
	IncCounter(BatchesTotal, 1, nil)
	if rows > 0 {
		IncCounter(RowsWrittenTotal, float64(rows), Labels{"table": table})
	}
	ObserveHistogram(InsertDuration, d.Seconds(), Labels{"table": table})
}

// RecordFactSkipped counts fact rows skipped for reason.
func RecordFactSkipped(reason string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(FactSkippedTotal, float64(n), Labels{"reason": reason})
}
