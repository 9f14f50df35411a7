package grid

import "fmt"

// Project integrates f over every axis not listed in keep and returns the
// result as a new field over the kept axes (in the order given).
//
// Each dropped axis contributes its quadrature weights rather than a plain
// bin width, so boundary points of a non-periodic axis count half. Integrating
// the projection therefore reproduces Integrate(f) exactly, where a
// bin-width product would overcount the dropped boundaries.
func (f *Field) Project(name string, keep []string) (*Field, error) {
	if len(keep) == 0 {
		return nil, fmt.Errorf("%w: projection needs at least one axis", ErrUnknownAxis)
	}
	if len(keep) >= len(f.axes) {
		return nil, fmt.Errorf("%w: projecting %d axes of a %d-dimensional field", ErrShapeMismatch, len(keep), len(f.axes))
	}
	keptPos := make([]int, len(keep))
	kept := make([]bool, len(f.axes))
	axes := make([]Axis, len(keep))
	for j, n := range keep {
		i := f.axisIndex(n)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAxis, n)
		}
		if kept[i] {
			return nil, fmt.Errorf("%w: %s listed twice", ErrUnknownAxis, n)
		}
		kept[i] = true
		keptPos[j] = i
		axes[j] = f.axes[i]
	}
	proj, err := New(name, axes)
	if err != nil {
		return nil, err
	}

	dropped := make([][]float64, len(f.axes))
	for i, a := range f.axes {
		if !kept[i] {
			dropped[i] = axisWeights(a)
		}
	}
	ind := make([]int, len(f.axes))
	pind := make([]int, len(keep))
	for idx, v := range f.values {
		f.indicesInto(idx, ind)
		w := 1.0
		for i, wi := range dropped {
			if wi != nil {
				w *= wi[ind[i]]
			}
		}
		for j, i := range keptPos {
			pind[j] = ind[i]
		}
		proj.values[proj.Flat(pind)] += w * v
	}
	return proj, nil
}
