package targetdist

import (
	"fmt"

	"github.com/nvandessel/targetdist/internal/grid"
)

// Node is one distribution variant. The Engine drives it through the update
// pipeline; a Node only produces values on the grid it is handed.
type Node interface {
	// Dimension returns the dimension the variant fixes on its own, or 0 if
	// it adapts to the grid it is set up on.
	Dimension() int
	// Dynamic reports whether values depend on collaborator grids that
	// change between updates.
	Dynamic() bool
	// Requirements lists the collaborator grids UpdateGrid reads.
	Requirements() Requirements
	// Value evaluates the density at a single point. Variants that only
	// work on whole grids return ErrPointwiseUnsupported.
	Value(point []float64) (float64, error)
	// UpdateGrid writes raw values into p.Grid.
	UpdateGrid(p *Pass) error
}

// gridSetupper is implemented by nodes that need to see the grid axes
// before their first update.
type gridSetupper interface {
	setupGrids(axes []grid.Axis) error
}

// parent is implemented by composite nodes owning child engines.
type parent interface {
	children() []*Engine
}

// Requirements names the collaborator grids a distribution reads.
type Requirements struct {
	FreeEnergy        bool `json:"free_energy"`
	Bias              bool `json:"bias"`
	BiasWithoutCutoff bool `json:"bias_without_cutoff"`
}

// Or returns the union of r and o.
func (r Requirements) Or(o Requirements) Requirements {
	return Requirements{
		FreeEnergy:        r.FreeEnergy || o.FreeEnergy,
		Bias:              r.Bias || o.Bias,
		BiasWithoutCutoff: r.BiasWithoutCutoff || o.BiasWithoutCutoff,
	}
}

// Links holds the collaborator grids borrowed for one pass. Nil entries are
// unlinked.
type Links struct {
	FreeEnergy        *grid.Field
	Bias              *grid.Field
	BiasWithoutCutoff *grid.Field
}

// BiasContext supplies the inverse thermal energy of the coordinating bias.
type BiasContext interface {
	Beta() float64
}

// FixedBeta is a BiasContext with a constant beta.
type FixedBeta float64

// Beta implements BiasContext.
func (b FixedBeta) Beta() float64 { return float64(b) }

// PassKind selects the primary or the reweight grid pair.
type PassKind int

const (
	Primary PassKind = iota
	Reweight
)

func (k PassKind) String() string {
	switch k {
	case Primary:
		return "primary"
	case Reweight:
		return "reweight"
	default:
		return fmt.Sprintf("PassKind(%d)", int(k))
	}
}

// Pass is the context handed to Node.UpdateGrid.
type Pass struct {
	Kind PassKind
	// Grid receives the raw values.
	Grid *grid.Field
	// ShiftToZero is set when negative raw values will be shifted away
	// after evaluation.
	ShiftToZero bool

	name    string
	links   Links
	bias    BiasContext
	workers int
}

// Beta returns the linked bias context's beta.
func (p *Pass) Beta() (float64, error) {
	if p.bias == nil {
		return 0, errorf(p.name, ErrMissingCollaborator, "no bias context linked")
	}
	return p.bias.Beta(), nil
}

// FreeEnergy returns the linked free energy grid for this pass.
func (p *Pass) FreeEnergy() (*grid.Field, error) {
	return p.collaborator(p.links.FreeEnergy, "free energy")
}

// Bias returns the linked bias grid for this pass.
func (p *Pass) Bias() (*grid.Field, error) {
	return p.collaborator(p.links.Bias, "bias")
}

// BiasWithoutCutoff returns the linked bias-without-cutoff grid for this pass.
func (p *Pass) BiasWithoutCutoff() (*grid.Field, error) {
	return p.collaborator(p.links.BiasWithoutCutoff, "bias without cutoff")
}

func (p *Pass) collaborator(g *grid.Field, what string) (*grid.Field, error) {
	if g == nil {
		return nil, errorf(p.name, ErrMissingCollaborator, "no %s %s grid linked", p.Kind, what)
	}
	if g.Size() != p.Grid.Size() {
		return nil, errorf(p.name, ErrDimensionMismatch, "%s %s grid has %d cells, %s grid has %d",
			p.Kind, what, g.Size(), p.Grid.Name(), p.Grid.Size())
	}
	return g, nil
}
