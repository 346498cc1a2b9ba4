package fragment

import "time"

// Stats counts the work done by a Set.
type Stats struct {
	FragmentsAdded  int64
	AddTime         time.Duration
	SetsCreated     int64
	SetCreationTime time.Duration
}

// Merge returns the sum of s and o.
func (s Stats) Merge(o Stats) Stats {
	return Stats{
		FragmentsAdded:  s.FragmentsAdded + o.FragmentsAdded,
		AddTime:         s.AddTime + o.AddTime,
		SetsCreated:     s.SetsCreated + o.SetsCreated,
		SetCreationTime: s.SetCreationTime + o.SetCreationTime,
	}
}
