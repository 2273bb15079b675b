package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/persistence"
)

// InstanceRepository handles instance-related database operations. Saves are
// guarded by the instance revision: an UPDATE that matches zero rows means a
// concurrent writer won, surfaced as ErrRevisionConflict.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

func (r *InstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	if instance.Revision == 0 {
		err = r.insertInstance(ctx, transaction, instance)
	} else {
		err = r.updateInstance(ctx, transaction, instance)
	}

	if err != nil {
		return err
	}

	for _, stage := range instance.Stages {
		if err := r.upsertStage(ctx, transaction, instance.ID, stage); err != nil {
			return persistence.NewInstanceError("Save", instance.ID, err)
		}
	}

	if err := transaction.Commit(); err != nil {
		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	instance.Revision++

	return nil
}

func (r *InstanceRepository) insertInstance(ctx context.Context, tx *sql.Tx, instance *models.WorkflowInstance) error {
	query := `
		INSERT INTO workflow_instances (
			id, organization_id, template_id, lineage_id, template_version,
			subject_entity_type, subject_entity_id, status, sla_status,
			started_at, due_at, finished_at, pause_reason, revision
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)
	`

	_, err := tx.ExecContext(ctx, query,
		instance.ID,
		instance.OrganizationID,
		instance.TemplateID,
		instance.LineageID,
		instance.TemplateVersion,
		instance.Subject.EntityType,
		instance.Subject.EntityID,
		instance.Status,
		instance.SLAStatus,
		instance.StartedAt,
		instance.DueAt,
		instance.FinishedAt,
		instance.PauseReason,
	)
	if err != nil {
		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) updateInstance(ctx context.Context, tx *sql.Tx, instance *models.WorkflowInstance) error {
	query := `
		UPDATE workflow_instances SET
			status = $1,
			sla_status = $2,
			due_at = $3,
			finished_at = $4,
			pause_reason = $5,
			revision = revision + 1
		WHERE id = $6 AND revision = $7
	`

	result, err := tx.ExecContext(ctx, query,
		instance.Status,
		instance.SLAStatus,
		instance.DueAt,
		instance.FinishedAt,
		instance.PauseReason,
		instance.ID,
		instance.Revision,
	)
	if err != nil {
		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	if affected == 0 {
		return persistence.NewInstanceError("Save", instance.ID, persistence.ErrRevisionConflict)
	}

	return nil
}

func (r *InstanceRepository) upsertStage(ctx context.Context, tx *sql.Tx, instanceID string, stage *models.StageInstance) error {
	assignees, err := json.Marshal(stage.Assignees)
	if err != nil {
		return err
	}

	var outcome []byte
	if stage.Outcome != nil {
		outcome, err = json.Marshal(stage.Outcome)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO stage_instances (
			id, workflow_instance_id, stage_definition_id, status, sla_status,
			activated_at, due_at, finished_at, assignees, needs_manual_assignment,
			attempt_count, outcome, gate_failure_reason, failure_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (workflow_instance_id, stage_definition_id) DO UPDATE SET
			status = EXCLUDED.status,
			sla_status = EXCLUDED.sla_status,
			activated_at = EXCLUDED.activated_at,
			due_at = EXCLUDED.due_at,
			finished_at = EXCLUDED.finished_at,
			assignees = EXCLUDED.assignees,
			needs_manual_assignment = EXCLUDED.needs_manual_assignment,
			attempt_count = EXCLUDED.attempt_count,
			outcome = EXCLUDED.outcome,
			gate_failure_reason = EXCLUDED.gate_failure_reason,
			failure_reason = EXCLUDED.failure_reason
	`

	_, err = tx.ExecContext(ctx, query,
		stage.ID,
		instanceID,
		stage.StageDefinitionID,
		stage.Status,
		stage.SLAStatus,
		stage.ActivatedAt,
		stage.DueAt,
		stage.FinishedAt,
		assignees,
		stage.NeedsManualAssignment,
		stage.AttemptCount,
		outcome,
		stage.GateFailureReason,
		stage.FailureReason,
	)

	return err
}

const instanceColumns = `
	id
  , organization_id
  , template_id
  , lineage_id
  , template_version
  , subject_entity_type
  , subject_entity_id
  , status
  , sla_status
  , started_at
  , due_at
  , finished_at
  , pause_reason
  , revision
`

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = $1`

	instance, err := r.scanInstance(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
		}

		return nil, persistence.NewInstanceError("GetByID", id, err)
	}

	if err := r.loadStages(ctx, instance); err != nil {
		return nil, persistence.NewInstanceError("GetByID", id, err)
	}

	return instance, nil
}

func (r *InstanceRepository) FindByStageInstanceID(ctx context.Context, stageInstanceID string) (*models.WorkflowInstance, error) {
	query := `SELECT workflow_instance_id FROM stage_instances WHERE id = $1`

	var instanceID string

	err := r.db.QueryRowContext(ctx, query, stageInstanceID).Scan(&instanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewInstanceError("FindByStageInstanceID", stageInstanceID, persistence.ErrInstanceNotFound)
		}

		return nil, persistence.NewInstanceError("FindByStageInstanceID", stageInstanceID, err)
	}

	return r.GetByID(ctx, instanceID)
}

func (r *InstanceRepository) FindBySubject(ctx context.Context, organizationID string, subject models.SubjectRef) ([]*models.WorkflowInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE organization_id = $1 AND subject_entity_type = $2 AND subject_entity_id = $3
		ORDER BY started_at DESC
	`

	return r.queryInstances(ctx, query, organizationID, subject.EntityType, subject.EntityID)
}

func (r *InstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE status = $1`

	return r.queryInstances(ctx, query, status)
}

func (r *InstanceRepository) queryInstances(ctx context.Context, query string, args ...any) ([]*models.WorkflowInstance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := r.scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	for _, instance := range instances {
		if err := r.loadStages(ctx, instance); err != nil {
			return nil, err
		}
	}

	return instances, nil
}

func (r *InstanceRepository) scanInstance(row rowScanner) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance

	err := row.Scan(
		&instance.ID,
		&instance.OrganizationID,
		&instance.TemplateID,
		&instance.LineageID,
		&instance.TemplateVersion,
		&instance.Subject.EntityType,
		&instance.Subject.EntityID,
		&instance.Status,
		&instance.SLAStatus,
		&instance.StartedAt,
		&instance.DueAt,
		&instance.FinishedAt,
		&instance.PauseReason,
		&instance.Revision,
	)
	if err != nil {
		return nil, err
	}

	return &instance, nil
}

func (r *InstanceRepository) loadStages(ctx context.Context, instance *models.WorkflowInstance) error {
	query := `
		SELECT
			id
		  , stage_definition_id
		  , status
		  , sla_status
		  , activated_at
		  , due_at
		  , finished_at
		  , assignees
		  , needs_manual_assignment
		  , attempt_count
		  , outcome
		  , gate_failure_reason
		  , failure_reason
		FROM stage_instances
		WHERE workflow_instance_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, instance.ID)
	if err != nil {
		return fmt.Errorf("failed to query stage instances: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instance.Stages = make([]*models.StageInstance, 0)

	for rows.Next() {
		var (
			stage     models.StageInstance
			assignees []byte
			outcome   []byte
		)

		err := rows.Scan(
			&stage.ID,
			&stage.StageDefinitionID,
			&stage.Status,
			&stage.SLAStatus,
			&stage.ActivatedAt,
			&stage.DueAt,
			&stage.FinishedAt,
			&assignees,
			&stage.NeedsManualAssignment,
			&stage.AttemptCount,
			&outcome,
			&stage.GateFailureReason,
			&stage.FailureReason,
		)
		if err != nil {
			return fmt.Errorf("failed to scan stage instance: %w", err)
		}

		stage.WorkflowInstance = instance.ID

		if err := json.Unmarshal(assignees, &stage.Assignees); err != nil {
			return fmt.Errorf("failed to decode assignees: %w", err)
		}

		if len(outcome) > 0 {
			if err := json.Unmarshal(outcome, &stage.Outcome); err != nil {
				return fmt.Errorf("failed to decode outcome: %w", err)
			}
		}

		instance.Stages = append(instance.Stages, &stage)
	}

	return rows.Err()
}
