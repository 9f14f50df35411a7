package grid

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Write serializes f in the plain-text grid format:
//
//	#! FIELDS <arg1> ... <argN> <name>
//	#! SET min_<arg> / max_<arg> / nbins_<arg> / periodic_<arg>
//	<coord1> ... <coordN> <value>     one line per cell, flat-index order
//
// A blank line follows every complete sweep of the first axis when the field
// has more than one dimension. Values are written with full precision so a
// Write/Read cycle is exact.
func Write(w io.Writer, f *Field) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "#! FIELDS %s %s\n", strings.Join(f.ArgNames(), " "), f.name)
	for _, a := range f.axes {
		fmt.Fprintf(bw, "#! SET min_%s %s\n", a.Name, formatFloat(a.Min))
		fmt.Fprintf(bw, "#! SET max_%s %s\n", a.Name, formatFloat(a.Max))
		fmt.Fprintf(bw, "#! SET nbins_%s %d\n", a.Name, a.Bins)
		fmt.Fprintf(bw, "#! SET periodic_%s %t\n", a.Name, a.Periodic)
	}
	p := make([]float64, len(f.axes))
	for idx, v := range f.values {
		f.PointInto(idx, p)
		for _, x := range p {
			bw.WriteString(formatFloat(x))
			bw.WriteByte(' ')
		}
		bw.WriteString(formatFloat(v))
		bw.WriteByte('\n')
		if len(f.axes) > 1 && (idx+1)%f.points[0] == 0 && idx+1 < len(f.values) {
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Read parses a grid written by Write. The field takes its name from the last
// FIELDS entry.
func Read(r io.Reader) (*Field, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var names []string
	var name string
	sets := make(map[string]string)
	var rows [][]string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#! FIELDS"):
			fields := strings.Fields(strings.TrimPrefix(line, "#! FIELDS"))
			if len(fields) < 2 {
				return nil, fmt.Errorf("%w: FIELDS needs at least one axis and a value column", ErrFormat)
			}
			names = fields[:len(fields)-1]
			name = fields[len(fields)-1]
		case strings.HasPrefix(line, "#! SET"):
			kv := strings.Fields(strings.TrimPrefix(line, "#! SET"))
			if len(kv) != 2 {
				return nil, fmt.Errorf("%w: bad SET line %q", ErrFormat, line)
			}
			sets[kv[0]] = kv[1]
		case strings.HasPrefix(line, "#"):
			continue
		default:
			rows = append(rows, strings.Fields(line))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading grid: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: missing FIELDS header", ErrFormat)
	}

	axes := make([]Axis, len(names))
	for i, n := range names {
		a := Axis{Name: n}
		var err error
		if a.Min, err = parseSet(sets, "min_"+n); err != nil {
			return nil, err
		}
		if a.Max, err = parseSet(sets, "max_"+n); err != nil {
			return nil, err
		}
		nb, ok := sets["nbins_"+n]
		if !ok {
			return nil, fmt.Errorf("%w: missing nbins_%s", ErrFormat, n)
		}
		if a.Bins, err = strconv.Atoi(nb); err != nil {
			return nil, fmt.Errorf("%w: nbins_%s: %v", ErrFormat, n, err)
		}
		if p, ok := sets["periodic_"+n]; ok {
			if a.Periodic, err = strconv.ParseBool(p); err != nil {
				return nil, fmt.Errorf("%w: periodic_%s: %v", ErrFormat, n, err)
			}
		}
		axes[i] = a
	}

	f, err := New(name, axes)
	if err != nil {
		return nil, err
	}
	if len(rows) != f.Size() {
		return nil, fmt.Errorf("%w: %d value lines for %d cells", ErrFormat, len(rows), f.Size())
	}
	for idx, row := range rows {
		if len(row) != len(names)+1 {
			return nil, fmt.Errorf("%w: line %d has %d columns, want %d", ErrFormat, idx+1, len(row), len(names)+1)
		}
		v, err := strconv.ParseFloat(row[len(row)-1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, idx+1, err)
		}
		f.values[idx] = v
	}
	return f, nil
}

func parseSet(sets map[string]string, key string) (float64, error) {
	s, ok := sets[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrFormat, key)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrFormat, key, err)
	}
	return v, nil
}
