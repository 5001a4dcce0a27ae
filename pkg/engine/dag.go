package engine

import (
	"fmt"
	"sort"
	"strings"
)

// StagePlanner builds the execution stages for a set of components.
// It validates the dependency graph, detects cycles, and assigns each
// component to a topological level so independent components can run
// concurrently.
type StagePlanner struct {
	// components maps component ids to their components
	components map[string]*Component

	// dependents maps component ids to the ids that depend on them
	dependents map[string][]string

	// inDegree tracks the number of unmet dependencies per component
	inDegree map[string]int
}

// CycleError is returned when the dependency graph is not acyclic.
// It is fatal and pre-flight: no deployment action has been taken.
type CycleError struct {
	// Remaining lists the component ids left after repeatedly removing
	// zero-in-degree nodes; every cycle is contained in this set.
	Remaining []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among components: %s",
		strings.Join(e.Remaining, ", "))
}

// NewStagePlanner creates a new stage planner.
func NewStagePlanner() *StagePlanner {
	return &StagePlanner{
		components: make(map[string]*Component),
		dependents: make(map[string][]string),
		inDegree:   make(map[string]int),
	}
}

// Build constructs ordered stage-sets from components using Kahn's
// algorithm. Each emitted layer contains components whose dependencies all
// lie in earlier layers; components within a layer are sorted by id so the
// plan is deterministic.
func (p *StagePlanner) Build(components []Component) ([]StageSet, error) {
	if err := p.initialize(components); err != nil {
		return nil, err
	}

	stages := make([]StageSet, 0, len(components))

	// Seed with every component that has no dependencies.
	current := make([]string, 0)
	for id, degree := range p.inDegree {
		if degree == 0 {
			current = append(current, id)
		}
	}

	processed := 0
	for len(current) > 0 {
		sort.Strings(current)
		stages = append(stages, StageSet{Index: len(stages), Components: current})
		processed += len(current)

		next := make([]string, 0)
		for _, id := range current {
			for _, dependent := range p.dependents[id] {
				p.inDegree[dependent]--
				if p.inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	// Anything left over has an unmet in-degree, which means a cycle.
	if processed != len(p.components) {
		remaining := make([]string, 0, len(p.components)-processed)
		for id, degree := range p.inDegree {
			if degree > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, &CycleError{Remaining: remaining}
	}

	return stages, nil
}

// initialize indexes components and builds the dependency bookkeeping.
func (p *StagePlanner) initialize(components []Component) error {
	p.components = make(map[string]*Component, len(components))
	p.dependents = make(map[string][]string, len(components))
	p.inDegree = make(map[string]int, len(components))

	for i := range components {
		c := &components[i]
		if c.ID == "" {
			return NewPermanentError("component has empty id", nil).
				WithCode(ErrCodeConfigInvalid)
		}
		if _, exists := p.components[c.ID]; exists {
			return NewPermanentError(
				fmt.Sprintf("duplicate component id: %s", c.ID), nil).
				WithCode(ErrCodeConfigInvalid)
		}
		p.components[c.ID] = c
		p.inDegree[c.ID] = 0
	}

	for _, c := range p.components {
		for _, dep := range c.DependsOn {
			if _, exists := p.components[dep]; !exists {
				return NewPermanentError(
					fmt.Sprintf("component %s depends on unknown component %s", c.ID, dep),
					nil).
					WithCode(ErrCodeConfigInvalid).
					WithComponent(c.ID)
			}
			if dep == c.ID {
				return &CycleError{Remaining: []string{c.ID}}
			}
			p.dependents[dep] = append(p.dependents[dep], c.ID)
			p.inDegree[c.ID]++
		}
	}

	return nil
}

// ToDOT generates a DOT representation of the staged graph for Graphviz.
func ToDOT(stages []StageSet, components []Component) string {
	byID := make(map[string]*Component, len(components))
	for i := range components {
		byID[components[i].ID] = &components[i]
	}

	var sb strings.Builder
	sb.WriteString("digraph DeploymentPlan {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for _, stage := range stages {
		fmt.Fprintf(&sb, "  subgraph cluster_stage_%d {\n", stage.Index)
		fmt.Fprintf(&sb, "    label=\"Stage %d\";\n", stage.Index)
		sb.WriteString("    style=dashed;\n")
		for _, id := range stage.Components {
			style := "solid"
			if c, ok := byID[id]; ok && c.Optional {
				style = "dotted"
			}
			fmt.Fprintf(&sb, "    %q [style=%q];\n", id, style)
		}
		sb.WriteString("  }\n\n")
	}

	for i := range components {
		for _, dep := range components[i].DependsOn {
			fmt.Fprintf(&sb, "  %q -> %q;\n", dep, components[i].ID)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
