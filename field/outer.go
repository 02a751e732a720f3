package field

import "github.com/sarchlab/envelope/errs"

// AxisProfiles holds one 1D profile for each of the three phase axes and the
// temporal axis, in axis order.
type AxisProfiles [Rank - 3][]complex128

// UnitProfiles returns all-ones profiles of the given extents. Combined with
// OuterProduct, they lift a spatial block to 7D by repeating it unchanged
// along the phase and temporal axes.
func UnitProfiles(phase [3]int, temporal int) AxisProfiles {
	var p AxisProfiles

	extents := [Rank - 3]int{phase[0], phase[1], phase[2], temporal}
	for i, n := range extents {
		p[i] = make([]complex128, n)
		for j := range p[i] {
			p[i][j] = 1
		}
	}

	return p
}

// OuterProduct builds a 7D field as the outer product of a 3D spatial block
// (row-major, extents spatialDims) and one profile per phase or temporal
// axis:
//
//	f[x,y,z,p,q,r,t] = spatial[x,y,z] * profiles[0][p] * profiles[1][q] *
//	                   profiles[2][r] * profiles[3][t]
//
// The resulting shape is spatialDims followed by the profile lengths. No
// other broadcasting is performed; every length must match exactly.
func OuterProduct(
	spatialDims [3]int,
	spatial []complex128,
	profiles AxisProfiles,
) (*Dense, error) {
	var dims Shape

	copy(dims[:3], spatialDims[:])
	for i, p := range profiles {
		dims[3+i] = len(p)
	}

	if err := dims.Validate(); err != nil {
		return nil, err
	}

	spatialSize := spatialDims[0] * spatialDims[1] * spatialDims[2]
	if len(spatial) != spatialSize {
		return nil, errs.Configf("spatial",
			"block has %d elements, expected %d for extents %v",
			len(spatial), spatialSize, spatialDims)
	}

	inner := outerOfProfiles(profiles)
	out := NewDense(dims)

	for s, v := range spatial {
		base := s * len(inner)
		for j, w := range inner {
			out.data[base+j] = v * w
		}
	}

	return out, nil
}

func outerOfProfiles(profiles AxisProfiles) []complex128 {
	acc := []complex128{1}

	for _, p := range profiles {
		next := make([]complex128, 0, len(acc)*len(p))
		for _, a := range acc {
			for _, b := range p {
				next = append(next, a*b)
			}
		}
		acc = next
	}

	return acc
}
