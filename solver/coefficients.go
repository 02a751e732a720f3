// Package solver solves the nonlinear local system of a tile. The operator
// combines a stiffness part and a susceptibility part that both depend on the
// current field amplitude.
package solver

import (
	"math"

	"github.com/sarchlab/envelope/errs"
)

// Coefficients are the scalar inputs of the tile operator.
type Coefficients struct {
	// Stiffness kappa(|a|) = Kappa0 + Kappa2*|a|^2.
	Kappa0 float64 `yaml:"kappa0"`
	Kappa2 float64 `yaml:"kappa2"`

	// Susceptibility chi(|a|) = ChiReal + i*ChiImag0/(1+|a|^2), scaled by
	// K0^2.
	ChiReal  float64 `yaml:"chi_real"`
	ChiImag0 float64 `yaml:"chi_imag0"`
	K0       float64 `yaml:"k0"`

	// Couplings between neighbours within Cutoff.
	CouplingStiffness float64 `yaml:"coupling_stiffness"`
	CouplingAmplitude float64 `yaml:"coupling_amplitude"`
	CouplingPhase     float64 `yaml:"coupling_phase"`
	Cutoff            float64 `yaml:"cutoff"`

	// Boundary is added to the diagonal, twice on tiles at the domain edge.
	Boundary float64 `yaml:"boundary"`
}

// DefaultCoefficients returns the coefficients used when none are given.
func DefaultCoefficients() Coefficients {
	return Coefficients{
		Kappa0:            1,
		Kappa2:            0.1,
		ChiReal:           0.5,
		ChiImag0:          0.05,
		K0:                1,
		CouplingStiffness: 0.01,
		CouplingAmplitude: 0.001,
		CouplingPhase:     0.001,
		Cutoff:            1,
		Boundary:          0.1,
	}
}

// Validate checks that every coefficient is finite and the cutoff is not
// negative.
func (c Coefficients) Validate() error {
	values := map[string]float64{
		"kappa0":             c.Kappa0,
		"kappa2":             c.Kappa2,
		"chi_real":           c.ChiReal,
		"chi_imag0":          c.ChiImag0,
		"k0":                 c.K0,
		"coupling_stiffness": c.CouplingStiffness,
		"coupling_amplitude": c.CouplingAmplitude,
		"coupling_phase":     c.CouplingPhase,
		"cutoff":             c.Cutoff,
		"boundary":           c.Boundary,
	}

	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.Configf(name, "must be finite, got %g", v)
		}
	}

	if c.Cutoff < 0 {
		return errs.Configf("cutoff", "must not be negative, got %g", c.Cutoff)
	}

	return nil
}

func (c Coefficients) kappa(amp float64) float64 {
	return c.Kappa0 + c.Kappa2*amp*amp
}

func (c Coefficients) chi(amp float64) complex128 {
	return complex(c.ChiReal, c.ChiImag0/(1+amp*amp))
}
