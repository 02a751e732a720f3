package scheduling

import (
	"go.uber.org/zap"

	"github.com/sarchlab/envelope/errs"
)

// DefaultNumStreams is the number of streams used when none is configured.
const DefaultNumStreams = 4

// Builder can build stream schedulers.
type Builder struct {
	numStreams int
	sync       Synchronizer
	progress   Progress
	logger     *zap.Logger
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		numStreams: DefaultNumStreams,
	}
}

// WithNumStreams sets the number of concurrent streams. One stream processes
// the batch sequentially.
func (b Builder) WithNumStreams(n int) Builder {
	b.numStreams = n
	return b
}

// WithSynchronizer sets the device synchronized after every batch.
func (b Builder) WithSynchronizer(s Synchronizer) Builder {
	b.sync = s
	return b
}

// WithProgress sets the progress tracker.
func (b Builder) WithProgress(p Progress) Builder {
	b.progress = p
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger *zap.Logger) Builder {
	b.logger = logger
	return b
}

// Build creates the scheduler.
func (b Builder) Build() (*StreamScheduler, error) {
	if b.numStreams < 1 {
		return nil, errs.Configf("num_streams",
			"must be at least 1, got %d", b.numStreams)
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StreamScheduler{
		numStreams: b.numStreams,
		sync:       b.sync,
		progress:   b.progress,
		logger:     logger,
	}, nil
}
