package targetdist

import "fmt"

// Step is one stage of an update pass. Steps run in declaration order; the
// transition function skips the ones a pass does not need.
type Step int

const (
	stepStart Step = iota
	StepEvaluate
	StepModify
	StepBiasCutoff
	StepShiftToZero
	StepForceNormalize
	StepCheckNormalization
	StepCheckNonnegative
	StepDone
)

var stepNames = map[Step]string{
	StepEvaluate:           "evaluate",
	StepModify:             "modify",
	StepBiasCutoff:         "bias_cutoff",
	StepShiftToZero:        "shift_to_zero",
	StepForceNormalize:     "force_normalize",
	StepCheckNormalization: "check_normalization",
	StepCheckNonnegative:   "check_nonnegative",
	StepDone:               "done",
}

func (s Step) String() string {
	if n, ok := stepNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// MarshalText writes the step name, so warnings encode readably.
func (s Step) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a step name written by MarshalText.
func (s *Step) UnmarshalText(text []byte) error {
	for step, name := range stepNames {
		if name == string(text) {
			*s = step
			return nil
		}
	}
	return fmt.Errorf("unknown pipeline step %q", text)
}

// policy is the resolved per-engine configuration of the pipeline.
type policy struct {
	modifiers          int
	cutoff             *FermiSwitch
	shiftToZero        bool
	forceNormalize     bool
	checkNormalization bool
	checkNonnegative   bool
}

// active reports whether s runs in a pass of the given kind. The bias
// cutoff, zero-shift and forced normalization steps are mutually exclusive
// in that priority order; the sanity checks only look at the primary grid.
func (p policy) active(s Step, kind PassKind) bool {
	switch s {
	case StepEvaluate:
		return true
	case StepModify:
		return p.modifiers > 0
	case StepBiasCutoff:
		return p.cutoff != nil
	case StepShiftToZero:
		return p.cutoff == nil && p.shiftToZero
	case StepForceNormalize:
		return p.cutoff == nil && !p.shiftToZero && p.forceNormalize
	case StepCheckNormalization:
		return kind == Primary && p.checkNormalization
	case StepCheckNonnegative:
		return kind == Primary && p.checkNonnegative
	default:
		return false
	}
}

// next returns the step that follows s, or StepDone.
func (p policy) next(s Step, kind PassKind) Step {
	for n := s + 1; n < StepDone; n++ {
		if p.active(n, kind) {
			return n
		}
	}
	return StepDone
}

// plan lists the steps a pass of the given kind executes.
func (p policy) plan(kind PassKind) []Step {
	var steps []Step
	for s := p.next(stepStart, kind); s != StepDone; s = p.next(s, kind) {
		steps = append(steps, s)
	}
	return steps
}
