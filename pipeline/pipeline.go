package pipeline

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrCycle is the cause of errors for graphs that contain a cycle.
	ErrCycle = errors.New("pipeline contains a cycle")
	// ErrFullDrainDeadlock is the cause of errors for graphs where a step that fully
	// drains an input could wait on rows that can only be produced after it makes progress.
	ErrFullDrainDeadlock = errors.New("full drain dependency would deadlock")
)

// Graph is the validated hop structure of a Definition.
type Graph struct {
	def *Definition

	steps    map[string]*StepDef
	children map[string][]string
	parents  map[string][]string
	errorHop map[string]string

	sorted []string
	tMark  map[string]bool
	pMark  map[string]bool
}

// NewGraph checks the structure of def: unique step names, hops between existing steps,
// no self loops or duplicate hops, at most one error hop per step.
func NewGraph(def *Definition) (*Graph, error) {
	if len(def.Steps) == 0 {
		return nil, errors.New("pipeline has no steps")
	}
	g := &Graph{
		def:      def,
		steps:    make(map[string]*StepDef, len(def.Steps)),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
		errorHop: make(map[string]string),
	}
	for i := range def.Steps {
		s := &def.Steps[i]
		if s.Name == "" {
			return nil, fmt.Errorf("step %d has no name", i)
		}
		if _, ok := g.steps[s.Name]; ok {
			return nil, fmt.Errorf("duplicate step %q", s.Name)
		}
		g.steps[s.Name] = s
	}
	seen := make(map[[2]string]bool, len(def.Hops))
	for _, h := range def.Hops {
		if _, ok := g.steps[h.From]; !ok {
			return nil, fmt.Errorf("hop %s -> %s: unknown step %q", h.From, h.To, h.From)
		}
		if _, ok := g.steps[h.To]; !ok {
			return nil, fmt.Errorf("hop %s -> %s: unknown step %q", h.From, h.To, h.To)
		}
		if h.From == h.To {
			return nil, errors.Wrapf(ErrCycle, "hop %s -> %s", h.From, h.To)
		}
		k := [2]string{h.From, h.To}
		if seen[k] {
			return nil, fmt.Errorf("duplicate hop %s -> %s", h.From, h.To)
		}
		seen[k] = true
		if h.Capacity < 0 {
			return nil, fmt.Errorf("hop %s -> %s: negative capacity %d", h.From, h.To, h.Capacity)
		}
		if h.Error {
			if prev, ok := g.errorHop[h.From]; ok {
				return nil, fmt.Errorf("step %q has two error hops: %q and %q", h.From, prev, h.To)
			}
			g.errorHop[h.From] = h.To
		}
		g.children[h.From] = append(g.children[h.From], h.To)
		g.parents[h.To] = append(g.parents[h.To], h.From)
	}
	return g, nil
}

// Definition returns the definition the graph was built from.
func (g *Graph) Definition() *Definition {
	return g.def
}

// Step returns the named step definition.
func (g *Graph) Step(name string) (*StepDef, bool) {
	s, ok := g.steps[name]
	return s, ok
}

// Parents returns the steps with a hop into name, in definition order.
func (g *Graph) Parents(name string) []string {
	return g.parents[name]
}

// Children returns the steps name has a hop to, in definition order.
func (g *Graph) Children(name string) []string {
	return g.children[name]
}

// ErrorHop returns the target of the error hop of name.
func (g *Graph) ErrorHop(name string) (string, bool) {
	to, ok := g.errorHop[name]
	return to, ok
}

// Sort returns the step names in topological order:
// every step appears after all of its parents.
func (g *Graph) Sort() ([]string, error) {
	if g.sorted != nil {
		return g.sorted, nil
	}
	g.tMark = make(map[string]bool, len(g.steps))
	g.pMark = make(map[string]bool, len(g.steps))
	var sorted []string
	// Visit in reverse definition order so the reversed result keeps definition order among independent steps.
	for i := len(g.def.Steps) - 1; i >= 0; i-- {
		var err error
		sorted, err = g.visit(g.def.Steps[i].Name, sorted, nil)
		if err != nil {
			return nil, err
		}
	}
	for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
		sorted[i], sorted[j] = sorted[j], sorted[i]
	}
	g.sorted = sorted
	return sorted, nil
}

// Depth first search topological sorting of a DAG.
// https://en.wikipedia.org/wiki/Topological_sorting#Algorithms
func (g *Graph) visit(n string, sorted, path []string) ([]string, error) {
	path = append(path, n)
	if g.tMark[n] {
		return nil, errors.Wrap(ErrCycle, strings.Join(path, " -> "))
	}
	if !g.pMark[n] {
		g.tMark[n] = true
		children := g.children[n]
		for i := len(children) - 1; i >= 0; i-- {
			var err error
			sorted, err = g.visit(children[i], sorted, path)
			if err != nil {
				return nil, err
			}
		}
		g.pMark[n] = true
		g.tMark[n] = false
		sorted = append(sorted, n)
	}
	return sorted, nil
}

// Reachable reports whether a path of hops leads from step from to step to.
func (g *Graph) Reachable(from, to string) bool {
	seen := make(map[string]bool)
	stack := append([]string(nil), g.children[from]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.children[n]...)
	}
	return false
}

// Upstream returns name and every step that can reach it.
func (g *Graph) Upstream(name string) map[string]bool {
	up := map[string]bool{name: true}
	stack := []string{name}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range g.parents[n] {
			if !up[p] {
				up[p] = true
				stack = append(stack, p)
			}
		}
	}
	return up
}

// CheckFullDrain validates a step that reads each of its info inputs to the end
// before it reads anything else or produces output.
//
// The configuration is rejected when
// the step's own output can reach the producer of an info input, or
// an info input and another input of the step share an upstream producer.
// In the second case the shared producer blocks on the bounded edge the step is not reading yet,
// and the info input never ends.
func (g *Graph) CheckFullDrain(step string, info []string) error {
	isInfo := make(map[string]bool, len(info))
	for _, in := range info {
		isInfo[in] = true
		if !contains(g.parents[step], in) {
			return fmt.Errorf("step %q reads info input %q but there is no hop %s -> %s", step, in, in, step)
		}
		if g.Reachable(step, in) {
			return errors.Wrapf(ErrFullDrainDeadlock, "step %q drains %q which depends on the output of %q", step, in, step)
		}
	}
	for _, in := range info {
		upInfo := g.Upstream(in)
		for _, other := range g.parents[step] {
			if other == in {
				continue
			}
			if shared := intersect(upInfo, g.Upstream(other)); len(shared) > 0 {
				return errors.Wrapf(ErrFullDrainDeadlock,
					"step %q drains %q while %q is fed by the same producer %s",
					step, in, other, strings.Join(shared, ", "))
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}

func intersect(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Dot returns a graphviz .dot formatted byte array of the graph.
func (g *Graph) Dot() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "digraph %q {\n", g.def.Name)
	for _, s := range g.def.Steps {
		fmt.Fprintf(&buf, "%q [label=%q];\n", s.Name, s.Name+" ("+s.Type+")")
	}
	for _, h := range g.def.Hops {
		if h.Error {
			fmt.Fprintf(&buf, "%q -> %q [style=dashed];\n", h.From, h.To)
			continue
		}
		fmt.Fprintf(&buf, "%q -> %q;\n", h.From, h.To)
	}
	buf.WriteString("}")
	return buf.Bytes()
}
