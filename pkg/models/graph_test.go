package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stage(id string, preds, succs []string) *StageDefinition {
	return &StageDefinition{
		ID:           id,
		Name:         id,
		Kind:         StageKindTask,
		Predecessors: preds,
		Successors:   succs,
		Assignment:   AssignmentConfig{Strategy: StrategySpecificUser},
	}
}

func TestBuildGraphForkJoin(t *testing.T) {
	graph, err := BuildGraph([]*StageDefinition{
		stage("a", nil, []string{"b", "c"}),
		stage("b", []string{"a"}, []string{"d"}),
		stage("c", []string{"a"}, []string{"d"}),
		stage("d", []string{"b", "c"}, nil),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, graph.Entries())
	assert.Equal(t, []string{"d"}, graph.Exits())
	assert.ElementsMatch(t, []string{"b", "c"}, graph.Successors("a"))
	assert.ElementsMatch(t, []string{"b", "c"}, graph.Predecessors("d"))
	assert.Len(t, graph.Stages(), 4)
}

func TestBuildGraphRejectsEmpty(t *testing.T) {
	_, err := BuildGraph(nil)
	assert.ErrorIs(t, err, ErrGraphNoStages)
}

func TestBuildGraphRejectsCycle(t *testing.T) {
	_, err := BuildGraph([]*StageDefinition{
		stage("entry", nil, []string{"a"}),
		stage("a", []string{"entry", "b"}, []string{"b", "exit"}),
		stage("b", []string{"a"}, []string{"a"}),
		stage("exit", []string{"a"}, nil),
	})
	assert.ErrorIs(t, err, ErrGraphCycle)
}

func TestBuildGraphRejectsSelfLoop(t *testing.T) {
	_, err := BuildGraph([]*StageDefinition{
		stage("a", []string{"a"}, []string{"a"}),
	})
	assert.Error(t, err)
}

func TestBuildGraphRejectsDuplicateIDs(t *testing.T) {
	_, err := BuildGraph([]*StageDefinition{
		stage("a", nil, nil),
		stage("a", nil, nil),
	})
	assert.ErrorIs(t, err, ErrGraphDuplicate)
}

func TestBuildGraphRejectsDanglingReference(t *testing.T) {
	_, err := BuildGraph([]*StageDefinition{
		stage("a", nil, []string{"ghost"}),
	})
	assert.ErrorIs(t, err, ErrGraphDangling)
}

func TestBuildGraphRejectsAsymmetricEdges(t *testing.T) {
	// a lists b as successor, but b does not list a as predecessor.
	_, err := BuildGraph([]*StageDefinition{
		stage("a", nil, []string{"b"}),
		stage("b", nil, nil),
	})
	assert.ErrorIs(t, err, ErrGraphAsymmetric)
}

func TestBuildGraphRequiresEntryAndExit(t *testing.T) {
	_, err := BuildGraph([]*StageDefinition{
		stage("a", []string{"b"}, []string{"b"}),
		stage("b", []string{"a"}, []string{"a"}),
	})
	assert.ErrorIs(t, err, ErrGraphNoEntry)
}
