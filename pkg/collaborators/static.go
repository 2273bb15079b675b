// Package collaborators provides stand-in implementations of the external
// collaborator interfaces for deployments without directory or entity
// integrations. Real deployments replace these with adapters over their HR
// directory, workload tracker and case store.
package collaborators

import (
	"context"
	"errors"

	"github.com/flowmill/flowmill/pkg/models"
)

// ErrNotIntegrated marks directory calls that have no backing integration.
// Assignment strategies degrade to needs-manual when they see it.
var ErrNotIntegrated = errors.New("no directory integration configured")

// Static is the permissive default collaborator set. Directory lookups fail
// (stages activate flagged for manual assignment), entity existence checks
// pass, and subjects expose no fields.
type Static struct{}

func NewStatic() *Static {
	return &Static{}
}

func (s *Static) GetManagerOf(_ context.Context, _ models.SubjectRef) (string, error) {
	return "", ErrNotIntegrated
}

func (s *Static) GetOpenItemCount(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (s *Static) GetCandidatesByAttributes(_ context.Context, _ map[string]string) ([]string, error) {
	return nil, ErrNotIntegrated
}

func (s *Static) GetCandidatesByLocation(_ context.Context, _ string) ([]string, error) {
	return nil, ErrNotIntegrated
}

func (s *Static) Exists(_ context.Context, _, _ string) (bool, error) {
	return true, nil
}

func (s *Static) SubjectFields(_ context.Context, _ models.SubjectRef) (map[string]any, error) {
	return map[string]any{}, nil
}
