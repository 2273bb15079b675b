package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flowmill/flowmill/pkg/models"
)

var (
	ErrTemplateNotPublished = errors.New("template is not published")
	ErrInstanceNotRunning   = errors.New("workflow instance is not running")
	ErrInstanceNotPaused    = errors.New("workflow instance is not paused")
	ErrInstanceTerminal     = errors.New("workflow instance already finished")
	ErrStageNotFound        = errors.New("stage instance not found")
	ErrStageNotActive       = errors.New("stage instance is not active")
	ErrInvalidSubjectRef    = errors.New("subject reference must carry entity type and entity id")
	ErrReasonRequired       = errors.New("a reason is required")
)

// GateRejectedError reports that a stage outcome was rejected by its gate.
// The stage remains active; Failures lists every blocking rule so callers can
// surface all of them at once.
type GateRejectedError struct {
	StageInstanceID string
	Failures        []models.RuleFailure
}

func (e *GateRejectedError) Error() string {
	reasons := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		reasons = append(reasons, fmt.Sprintf("%s: %s", failure.Kind, failure.Reason))
	}

	return fmt.Sprintf("gate rejected stage %s: %s", e.StageInstanceID, strings.Join(reasons, "; "))
}

// IsGateRejected reports whether err is a gate rejection.
func IsGateRejected(err error) bool {
	var gateErr *GateRejectedError

	return errors.As(err, &gateErr)
}
