package envelope

import (
	"context"
	"math"
	"math/cmplx"

	"go.uber.org/zap"

	"github.com/sarchlab/envelope/field"
	"github.com/sarchlab/envelope/scheduling"
	"github.com/sarchlab/envelope/tiling"
)

// A QuenchEvent reports the points of one tile whose amplitude is far above
// the tile mean.
type QuenchEvent struct {
	TileID    int
	Region    field.Region
	Count     int
	Mean      float64
	StdDev    float64
	Threshold float64
	Peak      float64
	PeakAt    [field.Rank]int
}

// A QuenchReport lists the quench events of a field, one per affected tile.
type QuenchReport struct {
	Count        int
	TilesScanned int
	Events       []QuenchEvent
}

// DetectQuenches scans disjoint tiles of a field and flags the points whose
// amplitude exceeds the tile mean by more than the configured number of
// standard deviations.
func (l *Loop) DetectQuenches(
	ctx context.Context,
	f field.Array,
) (QuenchReport, error) {
	domain := f.Shape()

	it, _, err := l.newIterator(domain, false)
	if err != nil {
		return QuenchReport{}, err
	}

	report := QuenchReport{TilesScanned: it.Count()}

	for {
		tiles := l.nextBatch(it)
		if len(tiles) == 0 {
			break
		}

		events, err := scheduling.Collect(ctx, l.scheduler, tiles,
			func(_ context.Context, _ int, t tiling.Tile) (QuenchEvent, error) {
				values, err := f.ReadRegion(t.Region())
				if err != nil {
					return QuenchEvent{}, err
				}

				return scanTile(t, values, l.quenchSigma), nil
			})
		if err != nil {
			return QuenchReport{}, err
		}

		for _, e := range events {
			if e.Count == 0 {
				continue
			}

			report.Count += e.Count
			report.Events = append(report.Events, e)
		}
	}

	if report.Count > 0 {
		l.logger.Info("quenches detected",
			zap.Int("points", report.Count),
			zap.Int("tiles", len(report.Events)))
	}

	return report, nil
}

func scanTile(t tiling.Tile, values []complex128, sigma float64) QuenchEvent {
	e := QuenchEvent{TileID: t.ID, Region: t.Region()}

	if len(values) == 0 {
		return e
	}

	amp := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		amp[i] = cmplx.Abs(v)
		sum += amp[i]
	}

	e.Mean = sum / float64(len(amp))

	variance := 0.0
	for _, a := range amp {
		d := a - e.Mean
		variance += d * d
	}

	e.StdDev = math.Sqrt(variance / float64(len(amp)))
	e.Threshold = e.Mean + sigma*e.StdDev

	if e.StdDev == 0 {
		return e
	}

	peak := -1
	for i, a := range amp {
		if a <= e.Threshold {
			continue
		}

		e.Count++
		if peak < 0 || a > amp[peak] {
			peak = i
		}
	}

	if peak >= 0 {
		e.Peak = amp[peak]

		local := t.Shape.Coord(peak)
		for a := range local {
			e.PeakAt[a] = t.Start[a] + local[a]
		}
	}

	return e
}

// ComputeImpedance returns (L a)/a for every point of a field, where L is the
// tile operator built from the field itself. Tiles overlap like in a solve
// and are blended the same way.
func (l *Loop) ComputeImpedance(
	ctx context.Context,
	f field.Array,
) (*field.Dense, error) {
	domain := f.Shape()

	it, _, err := l.newIterator(domain, true)
	if err != nil {
		return nil, err
	}

	merger := tiling.NewMerger(domain)

	for {
		tiles := l.nextBatch(it)
		if len(tiles) == 0 {
			break
		}

		_, err := scheduling.Collect(ctx, l.scheduler, tiles,
			func(_ context.Context, _ int, t tiling.Tile) (struct{}, error) {
				values, err := f.ReadRegion(t.Region())
				if err != nil {
					return struct{}{}, err
				}

				op := l.solver.Operator(t, domain, values)

				return struct{}{}, merger.Add(t, op.Impedance(values))
			})
		if err != nil {
			return nil, err
		}
	}

	return merger.Result(), nil
}
