package backend

import "fmt"

// DefaultMaxFragmentSize is used when a Config leaves MaxFragmentSize unset.
const DefaultMaxFragmentSize = 10 * 1024 * 1024

// Accessibility tells whether backend data is visible to all nodes.
type Accessibility string

const (
	// Global data is reachable from every node and shares a global thread budget.
	Global Accessibility = "global"
	// Local data lives on the node that wrote it.
	Local Accessibility = "local"
)

// FragmentationMethod selects how a region is cut into fragments.
type FragmentationMethod string

const (
	// Contiguous splits only the dimensions with the largest strides.
	Contiguous FragmentationMethod = "contiguous"
	// Equalized produces roughly cubic fragments.
	Equalized FragmentationMethod = "equalized"
)

// Config describes one backend.
type Config struct {
	// ID uniquely names the backend; fragments record it.
	ID string `json:"id"`
	// Type selects the implementation, e.g. "memory", "posix", "s3", "minio".
	Type string `json:"type"`
	// Target is the implementation specific location.
	Target string `json:"target"`

	MaxThreadsPerNode int           `json:"max-threads-per-node"`
	MaxGlobalThreads  int           `json:"max-global-threads"`
	Accessibility     Accessibility `json:"accessibility,omitempty"`

	// MaxFragmentSize caps the bytes of one fragment.
	MaxFragmentSize     int64               `json:"max-fragment-size,omitempty"`
	FragmentationMethod FragmentationMethod `json:"fragmentation-method,omitempty"`

	// Compression names the payload codec: none, lz4, zstd or snappy.
	Compression string `json:"compression,omitempty"`
}

// WithDefaults returns c with unset fields filled in.
func (c Config) WithDefaults() Config {
	if c.Accessibility == "" {
		c.Accessibility = Global
	}
	if c.MaxFragmentSize == 0 {
		c.MaxFragmentSize = DefaultMaxFragmentSize
	}
	if c.FragmentationMethod == "" {
		c.FragmentationMethod = Contiguous
	}
	return c
}

// Validate checks c after defaults are applied.
func (c Config) Validate() error {
	c = c.WithDefaults()
	switch {
	case c.ID == "":
		return fmt.Errorf("%w: backend id not set", ErrInvalidConfig)
	case c.MaxThreadsPerNode < 0 || c.MaxGlobalThreads < 0:
		return fmt.Errorf("%w: backend %s: negative thread count", ErrInvalidConfig, c.ID)
	case c.MaxFragmentSize < 0:
		return fmt.Errorf("%w: backend %s: negative max fragment size", ErrInvalidConfig, c.ID)
	}
	switch c.Accessibility {
	case Global, Local:
	default:
		return fmt.Errorf("%w: backend %s: unknown accessibility %q", ErrInvalidConfig, c.ID, c.Accessibility)
	}
	switch c.FragmentationMethod {
	case Contiguous, Equalized:
	default:
		return fmt.Errorf("%w: backend %s: unknown fragmentation method %q", ErrInvalidConfig, c.ID, c.FragmentationMethod)
	}
	return nil
}

// ThreadCount returns the worker count for one process when procsPerNode
// processes share a node and totalProcs processes run in all.
//
// Zero means tasks run synchronously in the caller.
func (c Config) ThreadCount(procsPerNode, totalProcs int) int {
	procsPerNode = max(procsPerNode, 1)
	totalProcs = max(totalProcs, 1)

	local := ceilDiv(c.MaxThreadsPerNode, procsPerNode)
	if c.WithDefaults().Accessibility != Global {
		return local
	}
	return min(local, ceilDiv(c.MaxGlobalThreads, totalProcs))
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
