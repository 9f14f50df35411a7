package grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Axis describes one coordinate of a Field.
type Axis struct {
	Name     string  `json:"name" yaml:"name"`
	Min      float64 `json:"min" yaml:"min"`
	Max      float64 `json:"max" yaml:"max"`
	Bins     int     `json:"bins" yaml:"bins"`
	Periodic bool    `json:"periodic,omitempty" yaml:"periodic,omitempty"`
}

// Points returns the number of grid points along the axis.
func (a Axis) Points() int {
	if a.Periodic {
		return a.Bins
	}
	return a.Bins + 1
}

// Dx returns the spacing between neighbouring points.
func (a Axis) Dx() float64 {
	return (a.Max - a.Min) / float64(a.Bins)
}

// Coordinates returns the position of every grid point along the axis.
func (a Axis) Coordinates() []float64 {
	c := floats.Span(make([]float64, a.Bins+1), a.Min, a.Max)
	return c[:a.Points()]
}

// Validate reports whether the axis can back a grid.
func (a Axis) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: empty name", ErrBadAxis)
	}
	if a.Bins <= 0 {
		return fmt.Errorf("%w: %s has %d bins", ErrBadAxis, a.Name, a.Bins)
	}
	if !(a.Max > a.Min) {
		return fmt.Errorf("%w: %s has max %g <= min %g", ErrBadAxis, a.Name, a.Max, a.Min)
	}
	return nil
}

// Field is a rectangular grid holding one float64 per cell.
// Its shape is fixed at construction; only values change afterwards.
// A Field is not safe for concurrent mutation.
type Field struct {
	name    string
	axes    []Axis
	points  []int
	stride  []int
	coords  [][]float64 // per-axis point coordinates, shared between clones
	values  []float64
	weights []float64 // lazily built quadrature weights, see IntegrationWeights
}

// New allocates a zero-valued field over the given axes.
func New(name string, axes []Axis) (*Field, error) {
	if len(axes) == 0 {
		return nil, ErrNoAxes
	}
	seen := make(map[string]bool, len(axes))
	f := &Field{
		name:   name,
		axes:   make([]Axis, len(axes)),
		points: make([]int, len(axes)),
		stride: make([]int, len(axes)),
		coords: make([][]float64, len(axes)),
	}
	size := 1
	for i, a := range axes {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("%w: duplicate axis name %s", ErrBadAxis, a.Name)
		}
		seen[a.Name] = true
		f.axes[i] = a
		f.points[i] = a.Points()
		f.coords[i] = a.Coordinates()
		f.stride[i] = size
		size *= f.points[i]
	}
	f.values = make([]float64, size)
	return f, nil
}

// Name returns the label the field was created with.
func (f *Field) Name() string { return f.name }

// Dimension returns the number of axes.
func (f *Field) Dimension() int { return len(f.axes) }

// Size returns the number of cells.
func (f *Field) Size() int { return len(f.values) }

// Axes returns a copy of the axis definitions.
func (f *Field) Axes() []Axis {
	out := make([]Axis, len(f.axes))
	copy(out, f.axes)
	return out
}

// ArgNames returns the axis names in axis order.
func (f *Field) ArgNames() []string {
	names := make([]string, len(f.axes))
	for i, a := range f.axes {
		names[i] = a.Name
	}
	return names
}

// Shape returns the number of points along each axis.
func (f *Field) Shape() []int {
	out := make([]int, len(f.points))
	copy(out, f.points)
	return out
}

// Dx returns the point spacing of each axis.
func (f *Field) Dx() []float64 {
	dx := make([]float64, len(f.axes))
	for i, a := range f.axes {
		dx[i] = a.Dx()
	}
	return dx
}

// BinVolume returns the product of all spacings.
func (f *Field) BinVolume() float64 {
	v := 1.0
	for _, a := range f.axes {
		v *= a.Dx()
	}
	return v
}

// axisIndex returns the position of the named axis or -1.
func (f *Field) axisIndex(name string) int {
	for i, a := range f.axes {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// SameShape reports whether o has identical axes.
func (f *Field) SameShape(o *Field) bool {
	if o == nil || len(f.axes) != len(o.axes) {
		return false
	}
	for i := range f.axes {
		if f.axes[i] != o.axes[i] {
			return false
		}
	}
	return true
}

// Indices splits a flat index into per-axis point indices.
func (f *Field) Indices(idx int) []int {
	ind := make([]int, len(f.points))
	f.indicesInto(idx, ind)
	return ind
}

func (f *Field) indicesInto(idx int, ind []int) {
	for i, n := range f.points {
		ind[i] = idx % n
		idx /= n
	}
}

// Flat joins per-axis point indices into a flat index.
func (f *Field) Flat(ind []int) int {
	idx := 0
	for i, k := range ind {
		idx += k * f.stride[i]
	}
	return idx
}

// Point returns the coordinates of cell idx.
func (f *Field) Point(idx int) []float64 {
	p := make([]float64, len(f.axes))
	f.PointInto(idx, p)
	return p
}

// PointInto writes the coordinates of cell idx into dst, which must have
// Dimension() entries.
func (f *Field) PointInto(idx int, dst []float64) {
	if idx < 0 || idx >= len(f.values) {
		panic(fmt.Sprintf("grid: index %d out of range [0,%d)", idx, len(f.values)))
	}
	for i, n := range f.points {
		dst[i] = f.coords[i][idx%n]
		idx /= n
	}
}

// Index returns the flat index of the grid point nearest to point.
// Periodic coordinates are wrapped into range first.
func (f *Field) Index(point []float64) (int, error) {
	if len(point) != len(f.axes) {
		return 0, fmt.Errorf("%w: point has %d coordinates, field has %d axes", ErrShapeMismatch, len(point), len(f.axes))
	}
	idx := 0
	for i, a := range f.axes {
		x := point[i]
		if a.Periodic {
			span := a.Max - a.Min
			x = a.Min + math.Mod(x-a.Min, span)
			if x < a.Min {
				x += span
			}
		} else if x < a.Min || x > a.Max {
			return 0, fmt.Errorf("%w: %s=%g not in [%g,%g]", ErrOutOfDomain, a.Name, point[i], a.Min, a.Max)
		}
		k := int(math.Round((x - a.Min) / a.Dx()))
		if a.Periodic {
			k %= f.points[i]
		} else if k >= f.points[i] {
			k = f.points[i] - 1
		}
		idx += k * f.stride[i]
	}
	return idx, nil
}

// Value returns the value of cell idx.
func (f *Field) Value(idx int) float64 { return f.values[idx] }

// SetValue overwrites the value of cell idx.
func (f *Field) SetValue(idx int, v float64) { f.values[idx] = v }

// ValueAt returns the value of the grid point nearest to point.
func (f *Field) ValueAt(point []float64) (float64, error) {
	idx, err := f.Index(point)
	if err != nil {
		return 0, err
	}
	return f.values[idx], nil
}

// Values returns a copy of all cell values in flat-index order.
func (f *Field) Values() []float64 {
	out := make([]float64, len(f.values))
	copy(out, f.values)
	return out
}

// SetValues replaces all cell values.
func (f *Field) SetValues(v []float64) error {
	if len(v) != len(f.values) {
		return fmt.Errorf("%w: %d values for %d cells", ErrShapeMismatch, len(v), len(f.values))
	}
	copy(f.values, v)
	return nil
}

// CopyValues copies the values of src, which must have the same cell count.
// Only the count is checked; axis metadata is not compared.
func (f *Field) CopyValues(src *Field) error {
	if src == nil {
		return fmt.Errorf("%w: nil source", ErrShapeMismatch)
	}
	return f.SetValues(src.values)
}

// Each calls fn for every cell in flat-index order. The point slice is
// reused between calls and must not be retained.
func (f *Field) Each(fn func(idx int, point []float64)) {
	p := make([]float64, len(f.axes))
	for idx := range f.values {
		f.PointInto(idx, p)
		fn(idx, p)
	}
}

// Scale multiplies every value by s.
func (f *Field) Scale(s float64) {
	floats.Scale(s, f.values)
}

// Shift adds c to every value.
func (f *Field) Shift(c float64) {
	floats.AddConst(c, f.values)
}

// Clear zeroes every value.
func (f *Field) Clear() {
	for i := range f.values {
		f.values[i] = 0
	}
}

// Min returns the smallest non-NaN value, or NaN if there is none.
func (f *Field) Min() float64 {
	if !floats.HasNaN(f.values) {
		return floats.Min(f.values)
	}
	return extremum(f.values, func(v, m float64) bool { return v < m })
}

// Max returns the largest non-NaN value, or NaN if there is none.
func (f *Field) Max() float64 {
	if !floats.HasNaN(f.values) {
		return floats.Max(f.values)
	}
	return extremum(f.values, func(v, m float64) bool { return v > m })
}

// extremum scans values skipping NaNs.
func extremum(values []float64, better func(v, m float64) bool) float64 {
	m := math.NaN()
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(m) || better(v, m) {
			m = v
		}
	}
	return m
}

// SetMinToZero shifts all values so the smallest finite value becomes 0.
// Infinite values stay infinite. A field without finite values is untouched.
func (f *Field) SetMinToZero() {
	m := math.Inf(1)
	for _, v := range f.values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v < m {
			m = v
		}
	}
	if math.IsInf(m, 1) {
		return
	}
	floats.AddConst(-m, f.values)
}

// Clone returns a deep copy under a new name.
func (f *Field) Clone(name string) *Field {
	c := &Field{
		name:   name,
		axes:   f.Axes(),
		points: f.Shape(),
		stride: make([]int, len(f.stride)),
		coords: f.coords,
		values: f.Values(),
	}
	copy(c.stride, f.stride)
	return c
}
