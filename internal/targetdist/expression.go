package targetdist

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"github.com/nvandessel/targetdist/internal/grid"
)

const expressionName = "MATHEVAL_DIST"

func init() {
	Register(Registration{
		Name:        expressionName,
		Description: "density given by an expression in s1..sN, FE, beta and kBT",
		Keys: withPolicies([]string{KeyFunction},
			KeyWellTemperedFactor, KeyShiftToZero, KeyBiasCutoff, KeyFermiLambda),
		New: newExpression,
	})
}

// Names an expression may reference besides the coordinate variables.
const (
	varFreeEnergy = "FE"
	varBeta       = "beta"
	varKBT        = "kBT"
	varPi         = "pi"
)

var coordinateVar = regexp.MustCompile(`^s([1-9][0-9]*)$`)

// mathFunctions are the float functions available to expressions.
var mathFunctions = map[string]func(float64) float64{
	"exp": math.Exp, "log": math.Log, "sqrt": math.Sqrt,
	"sin": math.Sin, "cos": math.Cos, "tan": math.Tan,
	"asin": math.Asin, "acos": math.Acos, "atan": math.Atan,
	"sinh": math.Sinh, "cosh": math.Cosh, "tanh": math.Tanh,
	"erf": math.Erf, "erfc": math.Erfc,
}

type expression struct {
	source  string
	program *vm.Program
	// coords maps 0-based axis indices to variable names, ascending.
	coords []coordVar
	usesFE bool
	// usesBeta is set when beta or kBT appears.
	usesBeta bool
}

type coordVar struct {
	axis int
	name string
}

func newExpression(s Spec, _ Builder) (Node, error) {
	if s.Function == "" {
		return nil, errorf(expressionName, ErrConfiguration, "%s is required", KeyFunction)
	}
	tree, err := parser.Parse(s.Function)
	if err != nil {
		return nil, errorf(expressionName, ErrConfiguration, "parsing %q: %v", s.Function, err)
	}
	var c identCollector
	ast.Walk(&tree.Node, &c)

	e := &expression{source: s.Function}
	env := map[string]any{varPi: math.Pi}
	for _, name := range c.variables() {
		switch {
		case name == varFreeEnergy:
			e.usesFE = true
		case name == varBeta, name == varKBT:
			e.usesBeta = true
		case name == varPi:
			continue
		case coordinateVar.MatchString(name):
			k, err := strconv.Atoi(coordinateVar.FindStringSubmatch(name)[1])
			if err != nil {
				return nil, errorf(expressionName, ErrConfiguration, "variable %s: %v", name, err)
			}
			e.coords = append(e.coords, coordVar{axis: k - 1, name: name})
		default:
			return nil, errorf(expressionName, ErrConfiguration,
				"cannot recognise variable %s in %q, use s1..sN, %s, %s or %s", name, s.Function, varFreeEnergy, varBeta, varKBT)
		}
		env[name] = 0.0
	}
	slices.SortFunc(e.coords, func(a, b coordVar) int { return a.axis - b.axis })

	opts := []expr.Option{expr.Env(env), expr.AsFloat64()}
	for name, fn := range mathFunctions {
		opts = append(opts, expr.Function(name, floatFunction(name, fn)))
	}
	e.program, err = expr.Compile(s.Function, opts...)
	if err != nil {
		return nil, errorf(expressionName, ErrConfiguration, "compiling %q: %v", s.Function, err)
	}
	return e, nil
}

func floatFunction(name string, fn func(float64) float64) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("%s takes one argument, got %d", name, len(params))
		}
		x, err := toFloat(params[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return fn(x), nil
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

// identCollector gathers identifier names, minus the ones used as callees.
type identCollector struct {
	idents  []string
	callees map[string]bool
}

func (c *identCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if !slices.Contains(c.idents, n.Value) {
			c.idents = append(c.idents, n.Value)
		}
	case *ast.CallNode:
		if id, ok := n.Callee.(*ast.IdentifierNode); ok {
			if c.callees == nil {
				c.callees = make(map[string]bool)
			}
			c.callees[id.Value] = true
		}
	}
}

func (c *identCollector) variables() []string {
	var out []string
	for _, name := range c.idents {
		if !c.callees[name] {
			out = append(out, name)
		}
	}
	return out
}

func (e *expression) Dimension() int             { return 0 }
func (e *expression) Dynamic() bool              { return e.usesFE }
func (e *expression) Requirements() Requirements { return Requirements{FreeEnergy: e.usesFE} }

func (e *expression) setupGrids(axes []grid.Axis) error {
	for _, c := range e.coords {
		if c.axis >= len(axes) {
			return errorf(expressionName, ErrDimensionMismatch,
				"variable %s used in %q but the grid has %d dimensions", c.name, e.source, len(axes))
		}
	}
	return nil
}

// Value evaluates expressions that depend on coordinates only.
func (e *expression) Value(point []float64) (float64, error) {
	if e.usesFE || e.usesBeta {
		return 0, errorf(expressionName, ErrPointwiseUnsupported, "%q needs collaborators", e.source)
	}
	env := e.newEnv(0)
	for _, c := range e.coords {
		if c.axis >= len(point) {
			return 0, errorf(expressionName, ErrDimensionMismatch, "point has %d coordinates, %s needs %d", len(point), c.name, c.axis+1)
		}
		env[c.name] = point[c.axis]
	}
	return e.run(env)
}

func (e *expression) newEnv(beta float64) map[string]any {
	env := map[string]any{varPi: math.Pi}
	if e.usesBeta {
		env[varBeta] = beta
		env[varKBT] = 1 / beta
	}
	return env
}

func (e *expression) run(env map[string]any) (float64, error) {
	out, err := expr.Run(e.program, env)
	if err != nil {
		return 0, errorf(expressionName, ErrConfiguration, "evaluating %q: %v", e.source, err)
	}
	return toFloat(out)
}

func (e *expression) UpdateGrid(p *Pass) error {
	var beta float64
	if e.usesBeta {
		b, err := p.Beta()
		if err != nil {
			return err
		}
		beta = b
	}
	var fe *grid.Field
	if e.usesFE {
		g, err := p.FreeEnergy()
		if err != nil {
			return err
		}
		fe = g
	}

	values, err := evaluateCells(p.Grid, p.workers, func() cellFunc {
		env := e.newEnv(beta)
		return func(idx int, point []float64) (float64, error) {
			for _, c := range e.coords {
				env[c.name] = point[c.axis]
			}
			if fe != nil {
				env[varFreeEnergy] = fe.Value(idx)
			}
			return e.run(env)
		}
	})
	if err != nil {
		return err
	}
	if !p.ShiftToZero {
		for idx, v := range values {
			if v < 0 {
				return errorf(expressionName, ErrNegativeValue,
					"%q is %g at %v, negative densities need %s", e.source, v, p.Grid.Point(idx), KeyShiftToZero)
			}
		}
	}
	mass := storeMass(p.Grid, values)
	if !(mass > 0) {
		if p.ShiftToZero {
			return nil
		}
		return errorf(expressionName, ErrNormalizationFailure, "%q integrates to %g", e.source, mass)
	}
	p.Grid.Scale(1 / mass)
	return nil
}
