package envelope

import (
	"context"
	"fmt"

	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/fft"
	"github.com/sarchlab/envelope/field"
)

// spectralBatchBytes bounds the windows read while reducing a spectrum.
const spectralBatchBytes = 64 << 20

// A SpectralReport summarizes the spectrum of a field.
type SpectralReport struct {
	// TotalEnergy is the sum of |F|^2 over the whole spectrum.
	TotalEnergy float64

	// TemporalSpectrum holds the energy at every temporal frequency index.
	TemporalSpectrum []float64

	Method fft.Method
}

// SpectralEnergy transforms a field over all seven axes and reduces the
// spectrum to its energy per temporal frequency.
func (l *Loop) SpectralEnergy(
	ctx context.Context,
	f field.Array,
) (SpectralReport, error) {
	if l.fft == nil {
		return SpectralReport{}, errs.Configf("fft",
			"spectral diagnostics need an FFT engine")
	}

	spec, err := l.fft.Forward(ctx, f)
	if err != nil {
		return SpectralReport{}, err
	}
	defer field.Release(spec)

	shape := spec.Shape()
	report := SpectralReport{
		TemporalSpectrum: make([]float64, shape[field.Rank-1]),
		Method:           l.fft.LastMethod(),
	}

	it := spec.IterBatches(spectralBatchBytes)
	for {
		b, ok := it.Next()
		if !ok {
			break
		}

		nt := b.Region.End[field.Rank-1] - b.Region.Start[field.Rank-1]
		for k, v := range b.Data {
			e := real(v)*real(v) + imag(v)*imag(v)
			report.TotalEnergy += e
			report.TemporalSpectrum[b.Region.Start[field.Rank-1]+k%nt] += e
		}
	}

	if err := it.Err(); err != nil {
		return SpectralReport{}, fmt.Errorf("reducing spectrum: %w", err)
	}

	return report, nil
}

// Smooth low-pass filters a field. Along every axis only the frequencies up to
// keep times the Nyquist index survive. It needs an orthonormal engine.
func (l *Loop) Smooth(
	ctx context.Context,
	f field.Array,
	keep float64,
) (*field.Dense, error) {
	if l.fft == nil {
		return nil, errs.Configf("fft", "smoothing needs an FFT engine")
	}

	if l.fft.Normalization() != fft.Orthonormal {
		return nil, errs.Configf("normalization",
			"smoothing needs orthonormal transforms, got %s",
			l.fft.Normalization())
	}

	if keep <= 0 || keep > 1 {
		return nil, errs.Configf("keep", "must be in (0, 1], got %g", keep)
	}

	spec, err := l.fft.Forward(ctx, f)
	if err != nil {
		return nil, err
	}

	specDense, err := field.Materialize(spec)
	if rerr := field.Release(spec); err == nil {
		err = rerr
	}

	if err != nil {
		return nil, err
	}

	lowPass(specDense, keep)

	out, err := l.fft.Inverse(ctx, specDense)
	if err != nil {
		return nil, err
	}

	return field.Materialize(out)
}

func lowPass(d *field.Dense, keep float64) {
	shape := d.Shape()

	var limit [field.Rank]float64
	for a, n := range shape {
		limit[a] = keep * float64(n/2)
	}

	data := d.Data()
	for i := range data {
		c := shape.Coord(i)
		for a, n := range shape {
			k := min(c[a], n-c[a])
			if float64(k) > limit[a] {
				data[i] = 0
				break
			}
		}
	}
}
