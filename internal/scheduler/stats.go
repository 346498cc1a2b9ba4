package scheduler

import "time"

// IOStats counts the traffic of one direction.
type IOStats struct {
	// Requests counts user requests, InternalRequests write-backs.
	Requests         int64
	InternalRequests int64
	// BytesUser is the payload of user requests, BytesInternal of write-backs.
	BytesUser     int64
	BytesInternal int64
	// Fragments counts backend tasks, BytesIO the bytes they moved.
	Fragments int64
	BytesIO   int64
}

// ReadTimes accumulates the phases of reads.
type ReadTimes struct {
	MakeSet   time.Duration
	Fill      time.Duration
	Enqueue   time.Duration
	Wait      time.Duration
	WriteBack time.Duration
	Total     time.Duration
}

// WriteTimes accumulates the phases of writes.
type WriteTimes struct {
	Split   time.Duration
	Enqueue time.Duration
	Wait    time.Duration
	Total   time.Duration
}

// Stats is a snapshot of the scheduler counters.
type Stats struct {
	Read       IOStats
	Write      IOStats
	ReadTimes  ReadTimes
	WriteTimes WriteTimes
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// ResetStats zeroes the counters.
func (s *Scheduler) ResetStats() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats = Stats{}
}

func (s *Scheduler) updateStats(fn func(*Stats)) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	fn(&s.stats)
}
