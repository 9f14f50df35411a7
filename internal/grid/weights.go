package grid

import "gonum.org/v1/gonum/floats"

// axisWeights returns the one-dimensional quadrature weights of axis a:
// dx everywhere, halved on both boundary points of a non-periodic axis.
func axisWeights(a Axis) []float64 {
	n := a.Points()
	w := make([]float64, n)
	floats.AddConst(a.Dx(), w)
	if !a.Periodic {
		w[0] *= 0.5
		w[n-1] *= 0.5
	}
	return w
}

// IntegrationWeights returns the quadrature weight of every cell of f in
// flat-index order. The slice is cached on the field and must not be
// modified by the caller.
func IntegrationWeights(f *Field) []float64 {
	if f.weights != nil {
		return f.weights
	}
	perAxis := make([][]float64, len(f.axes))
	for i, a := range f.axes {
		perAxis[i] = axisWeights(a)
	}
	w := make([]float64, len(f.values))
	ind := make([]int, len(f.axes))
	for idx := range w {
		f.indicesInto(idx, ind)
		cw := 1.0
		for i, k := range ind {
			cw *= perAxis[i][k]
		}
		w[idx] = cw
	}
	f.weights = w
	return w
}

// Mass returns the quadrature sum of values, which must hold one entry per
// cell of f. The same values always give the same bits.
func Mass(f *Field, values []float64) float64 {
	return floats.Dot(IntegrationWeights(f), values)
}

// Integrate returns the quadrature sum of f.
func Integrate(f *Field) float64 {
	return Mass(f, f.values)
}

// Normalize rescales f to unit mass and returns the mass it had before.
// A zero mass leaves the values untouched.
func Normalize(f *Field) float64 {
	mass := Integrate(f)
	if mass != 0 {
		f.Scale(1.0 / mass)
	}
	return mass
}
