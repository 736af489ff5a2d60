package pointnet

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Tensor is a named parameter's shape and row-major values.
type Tensor struct {
	Shape []int
	Data  []float64
}

// StateDict maps parameter names to their values.
type StateDict map[string]Tensor

type param struct {
	name  string
	shape []int
	data  []float64 // aliases the layer's storage
}

type paramSet struct {
	params []param
}

func (ps *paramSet) add(name string, shape []int, data []float64) {
	ps.params = append(ps.params, param{name: name, shape: shape, data: data})
}

func prefixf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

func (m *PointSemantic) parameters() *paramSet {
	ps := &paramSet{}
	for i, sa := range m.sa {
		sa.register(prefixf("sa%d", i+1), ps)
	}
	for i, fp := range m.fp {
		fp.register(prefixf("fp%d", len(m.fp)-i), ps)
	}
	m.head.register("head", ps)
	m.fold.register("fold", ps)
	return ps
}

// ParameterNames lists every parameter in registration order.
func (m *PointSemantic) ParameterNames() []string {
	ps := m.parameters()
	names := make([]string, len(ps.params))
	for i, p := range ps.params {
		names[i] = p.name
	}
	return names
}

// StateDict returns a deep copy of every parameter and running statistic.
func (m *PointSemantic) StateDict() StateDict {
	sd := StateDict{}
	for _, p := range m.parameters().params {
		sd[p.name] = Tensor{
			Shape: append([]int(nil), p.shape...),
			Data:  append([]float64(nil), p.data...),
		}
	}
	return sd
}

// LoadStateDict replaces all parameters. Keys and shapes must match the
// network exactly; nothing is modified when they do not.
func (m *PointSemantic) LoadStateDict(sd StateDict) error {
	ps := m.parameters()
	var missing, mismatched []string
	known := make(map[string]bool, len(ps.params))
	for _, p := range ps.params {
		known[p.name] = true
		t, ok := sd[p.name]
		if !ok {
			missing = append(missing, p.name)
			continue
		}
		if !cmp.Equal(t.Shape, p.shape) || len(t.Data) != len(p.data) {
			mismatched = append(mismatched, fmt.Sprintf("%s %v != %v", p.name, t.Shape, p.shape))
		}
	}
	var unexpected []string
	for name := range sd {
		if !known[name] {
			unexpected = append(unexpected, name)
		}
	}
	if len(missing)+len(mismatched)+len(unexpected) > 0 {
		sort.Strings(unexpected)
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, "missing: "+strings.Join(missing, ", "))
		}
		if len(unexpected) > 0 {
			parts = append(parts, "unexpected: "+strings.Join(unexpected, ", "))
		}
		if len(mismatched) > 0 {
			parts = append(parts, "shape: "+strings.Join(mismatched, ", "))
		}
		return fmt.Errorf("%w: %s", ErrCheckpointMismatch, strings.Join(parts, "; "))
	}
	for _, p := range ps.params {
		copy(p.data, sd[p.name].Data)
	}
	return nil
}
