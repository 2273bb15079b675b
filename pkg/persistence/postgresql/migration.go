package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_templates (
				id UUID PRIMARY KEY,
				organization_id VARCHAR(255) NOT NULL,
				lineage_id UUID NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				version INT NOT NULL,
				status VARCHAR(50) NOT NULL,
				stages JSONB NOT NULL DEFAULT '[]',
				workflow_sla_hours DOUBLE PRECISION,
				parent_version_id UUID,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE,
				archived_at TIMESTAMP WITH TIME ZONE,
				UNIQUE (organization_id, lineage_id, version)
			);

			CREATE INDEX idx_templates_lineage ON workflow_templates(organization_id, lineage_id);
			CREATE INDEX idx_templates_status ON workflow_templates(status);

			CREATE TABLE workflow_instances (
				id UUID PRIMARY KEY,
				organization_id VARCHAR(255) NOT NULL,
				template_id UUID NOT NULL REFERENCES workflow_templates(id),
				lineage_id UUID NOT NULL,
				template_version INT NOT NULL,
				subject_entity_type VARCHAR(255) NOT NULL,
				subject_entity_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				sla_status VARCHAR(50) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				due_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE,
				pause_reason TEXT NOT NULL DEFAULT '',
				revision BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_instances_subject ON workflow_instances(organization_id, subject_entity_type, subject_entity_id);
			CREATE INDEX idx_instances_status ON workflow_instances(status);

			CREATE TABLE stage_instances (
				id UUID NOT NULL,
				workflow_instance_id UUID NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				stage_definition_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				sla_status VARCHAR(50) NOT NULL,
				activated_at TIMESTAMP WITH TIME ZONE,
				due_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE,
				assignees JSONB NOT NULL DEFAULT '[]',
				needs_manual_assignment BOOLEAN NOT NULL DEFAULT FALSE,
				attempt_count INT NOT NULL DEFAULT 0,
				outcome JSONB,
				gate_failure_reason TEXT NOT NULL DEFAULT '',
				failure_reason TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (workflow_instance_id, stage_definition_id)
			);

			CREATE INDEX idx_stage_instances_status ON stage_instances(status);
		`,
	}
}
