// Package metrics collects operational metrics of dataset reads and writes.
package metrics

import (
	"sync/atomic"
	"time"
)

// Op is a backend operation.
type Op string

const (
	OpRead   Op = "read"
	OpWrite  Op = "write"
	OpDelete Op = "delete"
)

// Collector receives operational metrics.
// Implementations must be safe for concurrent use.
type Collector interface {
	// RecordWrite is called after each dataset write request.
	RecordWrite(bytes int64, fragments int, duration time.Duration, err error)

	// RecordRead is called after each dataset read request. fetched is the
	// number of bytes the selected fragments hold.
	RecordRead(bytes, fetched int64, fragments int, duration time.Duration, err error)

	// RecordTask is called after each backend I/O task.
	RecordTask(backend string, op Op, bytes int64, duration time.Duration, err error)

	// RecordFill is called when a read paints uncovered elements with the
	// fill value.
	RecordFill(elements int64)

	// RecordWriteBack is called after an expensive read was stored again.
	RecordWriteBack(bytes int64, err error)
}

// Noop discards all metrics.
type Noop struct{}

func (Noop) RecordWrite(int64, int, time.Duration, error)       {}
func (Noop) RecordRead(int64, int64, int, time.Duration, error) {}
func (Noop) RecordTask(string, Op, int64, time.Duration, error) {}
func (Noop) RecordFill(int64)                                   {}
func (Noop) RecordWriteBack(int64, error)                       {}

// Basic keeps in-memory counters.
// Useful for debugging and tests without an external monitoring system.
type Basic struct {
	WriteCount      atomic.Int64
	WriteErrors     atomic.Int64
	WriteBytes      atomic.Int64
	WriteFragments  atomic.Int64
	WriteTotalNanos atomic.Int64

	ReadCount      atomic.Int64
	ReadErrors     atomic.Int64
	ReadBytes      atomic.Int64
	ReadFetched    atomic.Int64
	ReadFragments  atomic.Int64
	ReadTotalNanos atomic.Int64

	TaskCount  atomic.Int64
	TaskErrors atomic.Int64

	FilledElements atomic.Int64

	WriteBackCount  atomic.Int64
	WriteBackErrors atomic.Int64
}

// RecordWrite implements Collector.
func (b *Basic) RecordWrite(bytes int64, fragments int, duration time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WriteErrors.Add(1)
		return
	}
	b.WriteBytes.Add(bytes)
	b.WriteFragments.Add(int64(fragments))
}

// RecordRead implements Collector.
func (b *Basic) RecordRead(bytes, fetched int64, fragments int, duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReadErrors.Add(1)
		return
	}
	b.ReadBytes.Add(bytes)
	b.ReadFetched.Add(fetched)
	b.ReadFragments.Add(int64(fragments))
}

// RecordTask implements Collector.
func (b *Basic) RecordTask(_ string, _ Op, _ int64, _ time.Duration, err error) {
	b.TaskCount.Add(1)
	if err != nil {
		b.TaskErrors.Add(1)
	}
}

// RecordFill implements Collector.
func (b *Basic) RecordFill(elements int64) {
	b.FilledElements.Add(elements)
}

// RecordWriteBack implements Collector.
func (b *Basic) RecordWriteBack(_ int64, err error) {
	b.WriteBackCount.Add(1)
	if err != nil {
		b.WriteBackErrors.Add(1)
	}
}

// GetStats returns a snapshot of the counters.
func (b *Basic) GetStats() BasicStats {
	return BasicStats{
		WriteCount:      b.WriteCount.Load(),
		WriteErrors:     b.WriteErrors.Load(),
		WriteBytes:      b.WriteBytes.Load(),
		WriteFragments:  b.WriteFragments.Load(),
		WriteAvgNanos:   avg(b.WriteTotalNanos.Load(), b.WriteCount.Load()),
		ReadCount:       b.ReadCount.Load(),
		ReadErrors:      b.ReadErrors.Load(),
		ReadBytes:       b.ReadBytes.Load(),
		ReadFetched:     b.ReadFetched.Load(),
		ReadFragments:   b.ReadFragments.Load(),
		ReadAvgNanos:    avg(b.ReadTotalNanos.Load(), b.ReadCount.Load()),
		TaskCount:       b.TaskCount.Load(),
		TaskErrors:      b.TaskErrors.Load(),
		FilledElements:  b.FilledElements.Load(),
		WriteBackCount:  b.WriteBackCount.Load(),
		WriteBackErrors: b.WriteBackErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicStats is a snapshot of Basic.
type BasicStats struct {
	WriteCount      int64
	WriteErrors     int64
	WriteBytes      int64
	WriteFragments  int64
	WriteAvgNanos   int64
	ReadCount       int64
	ReadErrors      int64
	ReadBytes       int64
	ReadFetched     int64
	ReadFragments   int64
	ReadAvgNanos    int64
	TaskCount       int64
	TaskErrors      int64
	FilledElements  int64
	WriteBackCount  int64
	WriteBackErrors int64
}
