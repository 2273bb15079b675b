package models

import (
	"errors"
	"fmt"
)

// Graph validation errors surfaced at publish time. A template whose graph
// fails validation never reaches instance execution.
var (
	ErrGraphNoStages   = errors.New("template has no stages")
	ErrGraphCycle      = errors.New("stage graph contains a cycle")
	ErrGraphNoEntry    = errors.New("stage graph has no entry stage")
	ErrGraphNoExit     = errors.New("stage graph has no exit stage")
	ErrGraphDuplicate  = errors.New("duplicate stage ID")
	ErrGraphDangling   = errors.New("stage references non-existent stage")
	ErrGraphAsymmetric = errors.New("predecessor/successor lists are not symmetric")
)

// StageGraph is the precomputed adjacency view of a template's stages.
// It is built once per template version and safe to share read-only.
type StageGraph struct {
	stages       map[string]*StageDefinition
	predecessors map[string][]string
	successors   map[string][]string
	entries      []string
	exits        []string
}

// BuildGraph validates a template's stage graph and returns its adjacency
// view. All structural invariants are checked here so traversal never has to.
func BuildGraph(stages []*StageDefinition) (*StageGraph, error) {
	if len(stages) == 0 {
		return nil, ErrGraphNoStages
	}

	g := &StageGraph{
		stages:       make(map[string]*StageDefinition, len(stages)),
		predecessors: make(map[string][]string, len(stages)),
		successors:   make(map[string][]string, len(stages)),
	}

	for _, stage := range stages {
		if _, exists := g.stages[stage.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrGraphDuplicate, stage.ID)
		}

		g.stages[stage.ID] = stage
	}

	for _, stage := range stages {
		for _, pred := range stage.Predecessors {
			if _, ok := g.stages[pred]; !ok {
				return nil, fmt.Errorf("%w: stage %s predecessor %s", ErrGraphDangling, stage.ID, pred)
			}

			if !contains(g.stages[pred].Successors, stage.ID) {
				return nil, fmt.Errorf("%w: %s -> %s", ErrGraphAsymmetric, pred, stage.ID)
			}

			g.predecessors[stage.ID] = append(g.predecessors[stage.ID], pred)
		}

		for _, succ := range stage.Successors {
			if _, ok := g.stages[succ]; !ok {
				return nil, fmt.Errorf("%w: stage %s successor %s", ErrGraphDangling, stage.ID, succ)
			}

			if !contains(g.stages[succ].Predecessors, stage.ID) {
				return nil, fmt.Errorf("%w: %s -> %s", ErrGraphAsymmetric, stage.ID, succ)
			}

			g.successors[stage.ID] = append(g.successors[stage.ID], succ)
		}

		if stage.IsEntry() {
			g.entries = append(g.entries, stage.ID)
		}

		if stage.IsExit() {
			g.exits = append(g.exits, stage.ID)
		}
	}

	if len(g.entries) == 0 {
		return nil, ErrGraphNoEntry
	}

	if len(g.exits) == 0 {
		return nil, ErrGraphNoExit
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}

	return g, nil
}

// checkAcyclic runs Kahn's algorithm over the predecessor counts.
func (g *StageGraph) checkAcyclic() error {
	inDegree := make(map[string]int, len(g.stages))
	for id := range g.stages {
		inDegree[id] = len(g.predecessors[id])
	}

	queue := make([]string, 0, len(g.entries))
	queue = append(queue, g.entries...)

	visited := 0

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visited++

		for _, succ := range g.successors[current] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if visited != len(g.stages) {
		return ErrGraphCycle
	}

	return nil
}

// Stage returns the stage definition for an ID, or nil.
func (g *StageGraph) Stage(id string) *StageDefinition {
	return g.stages[id]
}

// Stages returns all stage IDs in the graph.
func (g *StageGraph) Stages() []string {
	ids := make([]string, 0, len(g.stages))
	for id := range g.stages {
		ids = append(ids, id)
	}

	return ids
}

// Entries returns the IDs of stages with no predecessors.
func (g *StageGraph) Entries() []string {
	return g.entries
}

// Exits returns the IDs of stages with no successors.
func (g *StageGraph) Exits() []string {
	return g.exits
}

// Predecessors returns the predecessor IDs of a stage.
func (g *StageGraph) Predecessors(id string) []string {
	return g.predecessors[id]
}

// Successors returns the successor IDs of a stage.
func (g *StageGraph) Successors(id string) []string {
	return g.successors[id]
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}

	return false
}
