package targetdist

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/nvandessel/targetdist/internal/constants"
	"github.com/nvandessel/targetdist/internal/grid"
	"gonum.org/v1/gonum/floats"
)

// State is the lifecycle position of an Engine.
type State int

const (
	StateUnconfigured State = iota
	StateGridsAllocated
	StateUpdated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateGridsAllocated:
		return "grids_allocated"
	case StateUpdated:
		return "updated"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Tracer receives structured step and warning events.
// logging.TraceLogger satisfies it.
type Tracer interface {
	Log(event map[string]any)
}

// Warning records a failed sanity check of the last update.
type Warning struct {
	Step    Step    `json:"step"`
	Grid    string  `json:"grid"`
	Value   float64 `json:"value"`
	Message string  `json:"message"`
}

type options struct {
	logger   *slog.Logger
	tracer   Tracer
	workers  int
	observer func(PassKind, Step)
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger for sanity check warnings. The default is
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer sets a sink for step and warning events.
func WithTracer(t Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithWorkers sets how many goroutines evaluate grid cells. Results do not
// depend on the worker count.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithStepObserver registers fn to be called before every executed step.
func WithStepObserver(fn func(PassKind, Step)) Option {
	return func(o *options) { o.observer = fn }
}

// gridPair is a value grid with its derived log grid and collaborators.
type gridPair struct {
	value *grid.Field
	log   *grid.Field
	links Links
	// raw caches the evaluated values of a static distribution.
	raw []float64
}

// Engine owns one target distribution and its grids.
type Engine struct {
	name      string
	typeName  string
	node      Node
	policy    policy
	modifiers []Modifier
	dimension int
	state     State

	primary        gridPair
	reweight       gridPair
	reweightActive bool
	bias           BiasContext

	opts      options
	iteration int
	warnings  []Warning
}

type builder struct {
	opts []Option
}

func (b builder) Build(spec Spec) (*Engine, error) { return New(spec, b.opts...) }

// New validates spec and returns an unconfigured engine.
func New(spec Spec, opts ...Option) (*Engine, error) {
	reg, ok := Lookup(spec.Type)
	if !ok {
		return nil, errorf(spec.Type, ErrConfiguration, "unknown distribution type %q", spec.Type)
	}
	if err := spec.checkKeys(reg); err != nil {
		return nil, err
	}
	if err := spec.validatePolicies(); err != nil {
		return nil, err
	}
	node, err := reg.New(spec, builder{opts: opts})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		name:      spec.Type,
		typeName:  spec.Type,
		node:      node,
		dimension: node.Dimension(),
		opts:      options{workers: constants.DefaultWorkers},
	}
	for _, o := range opts {
		o(&e.opts)
	}
	if e.opts.logger == nil {
		e.opts.logger = slog.Default()
	}

	if spec.WellTemperedFactor > 0 {
		m, err := NewWellTemperedModifier(spec.WellTemperedFactor)
		if err != nil {
			return nil, err
		}
		e.modifiers = append(e.modifiers, m)
	}
	e.policy = policy{
		modifiers:          len(e.modifiers),
		shiftToZero:        spec.ShiftToZero,
		forceNormalize:     spec.Normalize,
		checkNormalization: true,
		checkNonnegative:   !spec.ShiftToZero,
	}
	if spec.BiasCutoff > 0 {
		sw := NewFermiSwitch(spec.BiasCutoff, spec.FermiLambda)
		e.policy.cutoff = &sw
		e.policy.checkNormalization = false
	}
	return e, nil
}

// Name returns the label used in errors and log lines.
func (e *Engine) Name() string { return e.name }

// Type returns the registered type name.
func (e *Engine) Type() string { return e.typeName }

// Description returns a human readable summary.
func (e *Engine) Description() string { return "Type: " + e.typeName }

// State returns the lifecycle state.
func (e *Engine) State() State { return e.state }

// Dimension returns the fixed dimension, or 0 before it is known.
func (e *Engine) Dimension() int { return e.dimension }

// Dynamic reports whether the distribution must be recomputed every update.
func (e *Engine) Dynamic() bool { return e.node.Dynamic() || e.policy.cutoff != nil }

// Static is the negation of Dynamic.
func (e *Engine) Static() bool { return !e.Dynamic() }

// ShiftToZero reports whether zero-shift is active.
func (e *Engine) ShiftToZero() bool { return e.policy.shiftToZero }

// ForcedNormalization reports whether forced normalization is active.
func (e *Engine) ForcedNormalization() bool { return e.policy.forceNormalize }

// BiasCutoffActive reports whether a bias cutoff is configured.
func (e *Engine) BiasCutoffActive() bool { return e.policy.cutoff != nil }

// BiasCutoff returns the configured cutoff switch, if any.
func (e *Engine) BiasCutoff() (FermiSwitch, bool) {
	if e.policy.cutoff == nil {
		return FermiSwitch{}, false
	}
	return *e.policy.cutoff, true
}

// ReweightActive reports whether reweight grids were set up.
func (e *Engine) ReweightActive() bool { return e.reweightActive }

// Modifiers returns the modifiers in application order.
func (e *Engine) Modifiers() []Modifier { return append([]Modifier(nil), e.modifiers...) }

// Requirements lists the collaborator grids needed for a pass. The reweight
// pass needs nothing while reweight grids are inactive.
func (e *Engine) Requirements(kind PassKind) Requirements {
	if kind == Reweight && !e.reweightActive {
		return Requirements{}
	}
	r := e.node.Requirements()
	if e.policy.cutoff != nil {
		r.BiasWithoutCutoff = true
	}
	return r
}

// NeedsFreeEnergyGrid reports whether a free energy grid must be linked.
func (e *Engine) NeedsFreeEnergyGrid() bool { return e.Requirements(Primary).FreeEnergy }

// NeedsBiasGrid reports whether a bias grid must be linked.
func (e *Engine) NeedsBiasGrid() bool { return e.Requirements(Primary).Bias }

// NeedsBiasWithoutCutoffGrid reports whether a bias-without-cutoff grid must be linked.
func (e *Engine) NeedsBiasWithoutCutoffGrid() bool {
	return e.Requirements(Primary).BiasWithoutCutoff
}

// Value evaluates the raw distribution at a single point, bypassing the
// grid pipeline. Dynamic variants return ErrPointwiseUnsupported.
func (e *Engine) Value(point []float64) (float64, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	if e.policy.cutoff != nil {
		return 0, errorf(e.name, ErrPointwiseUnsupported, "bias cutoff needs the bias grid")
	}
	return e.node.Value(point)
}

// Plan returns the steps an update pass of the given kind executes.
func (e *Engine) Plan(kind PassKind) []Step { return e.policy.plan(kind) }

// Grid returns the primary value grid, or nil before SetupGrids.
func (e *Engine) Grid() *grid.Field { return e.primary.value }

// LogGrid returns the primary log grid.
func (e *Engine) LogGrid() *grid.Field { return e.primary.log }

// ReweightGrid returns the reweight value grid, or nil when inactive.
func (e *Engine) ReweightGrid() *grid.Field { return e.reweight.value }

// LogReweightGrid returns the reweight log grid, or nil when inactive.
func (e *Engine) LogReweightGrid() *grid.Field { return e.reweight.log }

// Warnings returns the sanity check warnings of the last update.
func (e *Engine) Warnings() []Warning { return append([]Warning(nil), e.warnings...) }

// Iteration returns the number of completed updates.
func (e *Engine) Iteration() int { return e.iteration }

func (e *Engine) pair(kind PassKind) *gridPair {
	if kind == Reweight {
		return &e.reweight
	}
	return &e.primary
}

func (e *Engine) children() []*Engine {
	if p, ok := e.node.(parent); ok {
		return p.children()
	}
	return nil
}

func (e *Engine) checkOpen() error {
	if e.state == StateClosed {
		return errorf(e.name, ErrInvalidState, "engine is closed")
	}
	return nil
}

// SetupGrids allocates the primary grid pair over axes. It fixes the
// dimension if the distribution did not already.
func (e *Engine) SetupGrids(axes []grid.Axis) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if e.state != StateUnconfigured {
		return errorf(e.name, ErrInvalidState, "grids already set up")
	}
	if e.dimension > 0 && len(axes) != e.dimension {
		return errorf(e.name, ErrDimensionMismatch, "grid has %d dimensions, distribution has %d", len(axes), e.dimension)
	}
	value, err := grid.New(constants.KeyTargetDist, axes)
	if err != nil {
		return fmt.Errorf("%s: %w", e.name, err)
	}
	log, err := grid.New(constants.KeyLogTargetDist, axes)
	if err != nil {
		return fmt.Errorf("%s: %w", e.name, err)
	}
	if gs, ok := e.node.(gridSetupper); ok {
		if err := gs.setupGrids(axes); err != nil {
			return err
		}
	}
	for _, c := range e.children() {
		if err := c.SetupGrids(axes); err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
	}
	e.dimension = len(axes)
	e.primary = gridPair{value: value, log: log}
	e.state = StateGridsAllocated
	return nil
}

// SetupReweightGrids enables the mirrored reweight pair over axes, which
// must have the engine's dimension.
func (e *Engine) SetupReweightGrids(axes []grid.Axis) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if e.state == StateUnconfigured {
		return errorf(e.name, ErrInvalidState, "reweight grids need the primary grids first")
	}
	if e.reweightActive {
		return errorf(e.name, ErrInvalidState, "reweight grids already set up")
	}
	if len(axes) != e.dimension {
		return errorf(e.name, ErrDimensionMismatch, "reweight grid has %d dimensions, distribution has %d", len(axes), e.dimension)
	}
	value, err := grid.New(constants.KeyReweight, axes)
	if err != nil {
		return fmt.Errorf("%s: %w", e.name, err)
	}
	log, err := grid.New(constants.KeyLogReweight, axes)
	if err != nil {
		return fmt.Errorf("%s: %w", e.name, err)
	}
	for _, c := range e.children() {
		if err := c.SetupReweightGrids(axes); err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
	}
	e.reweight = gridPair{value: value, log: log}
	e.reweightActive = true
	return nil
}

// LinkBiasContext attaches the source of beta. Children are linked too.
func (e *Engine) LinkBiasContext(bc BiasContext) {
	e.bias = bc
	for _, c := range e.children() {
		c.LinkBiasContext(bc)
	}
}

// LinkGrids replaces the collaborator grids of one pass. The grids are
// borrowed: they are read during updates and never modified.
func (e *Engine) LinkGrids(kind PassKind, l Links) {
	e.pair(kind).links = l
	for _, c := range e.children() {
		c.LinkGrids(kind, l)
	}
}

// Update recomputes the primary grid pair and, when active, the reweight
// pair. A returned error is fatal for the engine.
func (e *Engine) Update() error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if e.state == StateUnconfigured {
		return errorf(e.name, ErrInvalidState, "update before grid setup")
	}
	if err := e.runPass(Primary); err != nil {
		return err
	}
	if e.reweightActive {
		if err := e.runPass(Reweight); err != nil {
			return err
		}
	}
	e.iteration++
	return nil
}

// runPass executes the pipeline for one grid pair.
func (e *Engine) runPass(kind PassKind) error {
	if kind == Primary {
		e.warnings = e.warnings[:0]
	}
	for s := e.policy.next(stepStart, kind); s != StepDone; s = e.policy.next(s, kind) {
		if e.opts.observer != nil {
			e.opts.observer(kind, s)
		}
		e.trace(map[string]any{"event": "step", "pass": kind.String(), "step": s.String()})
		if err := e.execute(s, kind); err != nil {
			return err
		}
	}
	if kind == Primary {
		e.state = StateUpdated
	}
	return nil
}

func (e *Engine) execute(s Step, kind PassKind) error {
	p := e.pair(kind)
	switch s {
	case StepEvaluate:
		return e.evaluate(kind, p)
	case StepModify:
		return e.modify(p)
	case StepBiasCutoff:
		return e.applyCutoff(kind, p)
	case StepShiftToZero:
		p.value.SetMinToZero()
		if mass := grid.Normalize(p.value); !(mass > 0) {
			return errorf(e.name, ErrNormalizationFailure, "%s grid integrates to %g after shift to zero", kind, mass)
		}
		refreshLog(p)
	case StepForceNormalize:
		if mass := grid.Normalize(p.value); !(mass > 0) {
			return errorf(e.name, ErrNormalizationFailure, "%s grid integrates to %g", kind, mass)
		}
	case StepCheckNormalization:
		mass := grid.Integrate(p.value)
		if math.Abs(mass-1) > constants.NormalizationTolerance {
			e.warn(s, p.value.Name(), mass, "target distribution grid is not properly normalized, consider normalize")
		}
	case StepCheckNonnegative:
		if m := p.value.Min(); m < constants.NonnegativeThreshold {
			e.warn(s, p.value.Name(), m, "target distribution grid has negative values, consider shift_to_zero")
		}
	}
	return nil
}

func (e *Engine) evaluate(kind PassKind, p *gridPair) error {
	static := !e.Dynamic()
	if static && p.raw != nil {
		if err := p.value.SetValues(p.raw); err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
	} else {
		pass := &Pass{
			Kind:        kind,
			Grid:        p.value,
			ShiftToZero: e.policy.shiftToZero,
			name:        e.name,
			links:       p.links,
			bias:        e.bias,
			workers:     e.opts.workers,
		}
		if err := e.node.UpdateGrid(pass); err != nil {
			return err
		}
		if static {
			p.raw = p.value.Values()
		}
	}
	refreshLog(p)
	return nil
}

func (e *Engine) modify(p *gridPair) error {
	values := make([]float64, p.value.Size())
	for _, m := range e.modifiers {
		p.value.Each(func(idx int, point []float64) {
			values[idx] = m.Modify(p.value.Value(idx), point)
		})
		mass := storeMass(p.value, values)
		if !(mass > 0) {
			return errorf(e.name, ErrNormalizationFailure, "grid integrates to %g after %s modifier", mass, m.Name())
		}
		p.value.Scale(1 / mass)
		refreshLog(p)
	}
	return nil
}

// applyCutoff multiplies by the switching function of the uncut bias,
// normalizes by the switched mass, then applies the derivative factor. The
// log grid keeps the pre-cutoff values.
func (e *Engine) applyCutoff(kind PassKind, p *gridPair) error {
	bias := p.links.BiasWithoutCutoff
	if bias == nil {
		return errorf(e.name, ErrMissingCollaborator, "no %s bias without cutoff grid linked", kind)
	}
	if bias.Size() != p.value.Size() {
		return errorf(e.name, ErrDimensionMismatch, "%s bias without cutoff grid has %d cells, want %d", kind, bias.Size(), p.value.Size())
	}
	switched := make([]float64, p.value.Size())
	derivs := make([]float64, p.value.Size())
	for idx := range switched {
		sw, deriv := e.policy.cutoff.Switch(bias.Value(idx))
		switched[idx] = p.value.Value(idx) * sw
		derivs[idx] = deriv
	}
	norm := grid.Mass(p.value, switched)
	if !(norm > 0) {
		return errorf(e.name, ErrNormalizationFailure, "%s grid integrates to %g after bias cutoff", kind, norm)
	}
	floats.Mul(switched, derivs)
	floats.Scale(1/norm, switched)
	if err := p.value.SetValues(switched); err != nil {
		return fmt.Errorf("%s: %w", e.name, err)
	}
	return nil
}

// refreshLog sets log = -ln(value) shifted so its finite minimum is zero.
func refreshLog(p *gridPair) {
	for idx := 0; idx < p.value.Size(); idx++ {
		p.log.SetValue(idx, -math.Log(p.value.Value(idx)))
	}
	p.log.SetMinToZero()
}

func (e *Engine) warn(s Step, gridName string, value float64, msg string) {
	e.warnings = append(e.warnings, Warning{Step: s, Grid: gridName, Value: value, Message: msg})
	e.opts.logger.Warn(msg, "distribution", e.name, "grid", gridName, "value", value)
	e.trace(map[string]any{"event": "warning", "step": s.String(), "grid": gridName, "value": value, "message": msg})
}

func (e *Engine) trace(event map[string]any) {
	if e.opts.tracer == nil {
		return
	}
	event["distribution"] = e.name
	event["iteration"] = e.iteration
	e.opts.tracer.Log(event)
}

// ClearLogGrid zeroes the primary log grid.
func (e *Engine) ClearLogGrid() error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if e.primary.log == nil {
		return errorf(e.name, ErrInvalidState, "grids not set up")
	}
	e.primary.log.Clear()
	return nil
}

// ClearLogReweightGrid zeroes the reweight log grid.
func (e *Engine) ClearLogReweightGrid() error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if !e.reweightActive {
		return errorf(e.name, ErrInvalidState, "reweight grids not set up")
	}
	e.reweight.log.Clear()
	return nil
}

// Close releases the grids and all children. Later calls return
// ErrInvalidState; closing twice is a no-op.
func (e *Engine) Close() error {
	if e.state == StateClosed {
		return nil
	}
	for _, c := range e.children() {
		c.Close()
	}
	e.primary = gridPair{}
	e.reweight = gridPair{}
	e.reweightActive = false
	e.bias = nil
	e.state = StateClosed
	return nil
}
