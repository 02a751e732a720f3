// Package scheduling runs batches of tiles on a number of concurrent streams.
package scheduling

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/tiling"
)

// A Synchronizer waits for all queued device work to complete.
type Synchronizer interface {
	Synchronize() error
}

// Progress is notified as tiles start and finish.
type Progress interface {
	IncrementInProgress(amount uint64)
	MoveInProgressToFinished(amount uint64)
}

// TileFunc processes one tile of a batch. Index is the position of the tile
// in the batch.
type TileFunc func(ctx context.Context, stream, index int, t tiling.Tile) error

// A StreamScheduler splits a batch into contiguous runs and processes every
// run on its own stream. A batch either completes as a whole or fails.
type StreamScheduler struct {
	numStreams int
	sync       Synchronizer
	progress   Progress
	logger     *zap.Logger
}

// NumStreams returns the number of streams.
func (s *StreamScheduler) NumStreams() int {
	return s.numStreams
}

// SetProgress sets the progress tracker notified by later batches.
func (s *StreamScheduler) SetProgress(p Progress) {
	s.progress = p
}

// A Span is a contiguous run [Begin, End) of a batch.
type Span struct {
	Begin int
	End   int
}

// Partition splits n items into min(numStreams, n) contiguous spans whose
// lengths differ by at most one.
func (s *StreamScheduler) Partition(n int) []Span {
	if n == 0 {
		return nil
	}

	k := min(s.numStreams, n)
	spans := make([]Span, k)

	base, extra := n/k, n%k
	begin := 0
	for i := range spans {
		size := base
		if i < extra {
			size++
		}

		spans[i] = Span{Begin: begin, End: begin + size}
		begin += size
	}

	return spans
}

// Run processes a batch. Tiles within a stream run in order; streams run
// concurrently. The first failure cancels the tiles not yet started and is
// returned after all streams stopped. The backend is synchronized after the
// streams join.
func (s *StreamScheduler) Run(
	ctx context.Context,
	tiles []tiling.Tile,
	fn TileFunc,
) error {
	spans := s.Partition(len(tiles))
	if len(spans) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	for stream, span := range spans {
		g.Go(func() error {
			return s.runStream(gctx, stream, span, tiles, fn)
		})
	}

	err := g.Wait()

	if s.sync != nil {
		if syncErr := s.sync.Synchronize(); syncErr != nil && err == nil {
			err = &errs.ResourceError{Op: "synchronize", Err: syncErr}
		}
	}

	if err != nil {
		s.logger.Debug("batch failed",
			zap.Int("tiles", len(tiles)),
			zap.Error(err))

		return err
	}

	return nil
}

func (s *StreamScheduler) runStream(
	ctx context.Context,
	stream int,
	span Span,
	tiles []tiling.Tile,
	fn TileFunc,
) error {
	for i := span.Begin; i < span.End; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if s.progress != nil {
			s.progress.IncrementInProgress(1)
		}

		err := fn(ctx, stream, i, tiles[i])

		if s.progress != nil {
			s.progress.MoveInProgressToFinished(1)
		}

		if err != nil {
			return fmt.Errorf("stream %d, %s: %w", stream, tiles[i], err)
		}
	}

	return nil
}

// Collect runs fn over a batch and returns the results in batch order. If any
// tile fails, no result is returned.
func Collect[T any](
	ctx context.Context,
	s *StreamScheduler,
	tiles []tiling.Tile,
	fn func(ctx context.Context, stream int, t tiling.Tile) (T, error),
) ([]T, error) {
	results := make([]T, len(tiles))

	err := s.Run(ctx, tiles,
		func(ctx context.Context, stream, index int, t tiling.Tile) error {
			r, err := fn(ctx, stream, t)
			if err != nil {
				return err
			}

			results[index] = r

			return nil
		})
	if err != nil {
		return nil, err
	}

	return results, nil
}
