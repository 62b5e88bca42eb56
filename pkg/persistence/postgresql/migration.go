package postgresql

// migrations returns the schema migrations keyed by version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflow_definitions (
				id VARCHAR(255) PRIMARY KEY,
				version INTEGER NOT NULL DEFAULT 1,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL DEFAULT 'draft',
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				trigger_conf JSONB,
				variables JSONB,
				owner VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				published_at TIMESTAMP WITH TIME ZONE
			);

			CREATE TABLE IF NOT EXISTS workflow_instances (
				id VARCHAR(255) PRIMARY KEY,
				definition_id VARCHAR(255) NOT NULL,
				definition_version INTEGER NOT NULL DEFAULT 1,
				status VARCHAR(50) NOT NULL,
				trigger_data JSONB,
				variables JSONB,
				context JSONB NOT NULL DEFAULT '{}',
				completed_nodes JSONB NOT NULL DEFAULT '[]',
				suspended_node_id VARCHAR(255) NOT NULL DEFAULT '',
				suspend_reason TEXT NOT NULL DEFAULT '',
				failed_node_id VARCHAR(255) NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				compensation JSONB,
				cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
				session_id VARCHAR(255) NOT NULL DEFAULT '',
				user_id VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_instances_status ON workflow_instances(status);
			CREATE INDEX IF NOT EXISTS idx_instances_definition ON workflow_instances(definition_id);

			CREATE TABLE IF NOT EXISTS checkpoints (
				instance_id VARCHAR(255) PRIMARY KEY,
				checkpoint_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL DEFAULT '',
				sequence BIGINT NOT NULL,
				context JSONB NOT NULL DEFAULT '{}',
				completed_nodes JSONB NOT NULL DEFAULT '[]',
				variables JSONB,
				trigger_data JSONB,
				progress DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				expires_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_checkpoints_expires ON checkpoints(expires_at);
		`,
		2: `
			CREATE TABLE IF NOT EXISTS canary_deployments (
				id VARCHAR(255) PRIMARY KEY,
				target_type VARCHAR(100) NOT NULL,
				target_id VARCHAR(255) NOT NULL,
				old_version VARCHAR(100) NOT NULL,
				new_version VARCHAR(100) NOT NULL,
				traffic_fraction DOUBLE PRECISION NOT NULL DEFAULT 0,
				strategy VARCHAR(100) NOT NULL DEFAULT '',
				compensation_strategy VARCHAR(50) NOT NULL DEFAULT 'ignore',
				status VARCHAR(50) NOT NULL DEFAULT 'draft',
				auto_rollback BOOLEAN NOT NULL DEFAULT TRUE,
				rollback_reason TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				promoted_at TIMESTAMP WITH TIME ZONE,
				rolled_back_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_deployments_status ON canary_deployments(status);

			CREATE TABLE IF NOT EXISTS canary_assignments (
				deployment_id VARCHAR(255) NOT NULL,
				unit_kind VARCHAR(20) NOT NULL,
				unit_key VARCHAR(255) NOT NULL,
				assigned_version VARCHAR(100) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (deployment_id, unit_kind, unit_key)
			);

			CREATE TABLE IF NOT EXISTS deployment_metrics (
				id BIGSERIAL PRIMARY KEY,
				deployment_id VARCHAR(255) NOT NULL,
				version VARCHAR(100) NOT NULL,
				error_rate DOUBLE PRECISION NOT NULL,
				latency_p95_ms DOUBLE PRECISION NOT NULL,
				sample_count INTEGER NOT NULL,
				window_start TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_metrics_window
				ON deployment_metrics(deployment_id, version, window_start);
		`,
		3: `
			CREATE TABLE IF NOT EXISTS trust_scores (
				entity_id VARCHAR(255) PRIMARY KEY,
				level INTEGER NOT NULL DEFAULT 0,
				score DOUBLE PRECISION NOT NULL DEFAULT 0,
				components JSONB NOT NULL DEFAULT '{}',
				evaluated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS trust_level_changes (
				id BIGSERIAL PRIMARY KEY,
				entity_id VARCHAR(255) NOT NULL,
				previous_level INTEGER NOT NULL,
				new_level INTEGER NOT NULL,
				reason TEXT NOT NULL DEFAULT '',
				triggered_by VARCHAR(50) NOT NULL DEFAULT 'auto',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_trust_changes_entity ON trust_level_changes(entity_id);

			CREATE TABLE IF NOT EXISTS decision_matrix (
				trust_level INTEGER NOT NULL,
				risk_level VARCHAR(20) NOT NULL,
				decision VARCHAR(20) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (trust_level, risk_level)
			);

			CREATE TABLE IF NOT EXISTS risk_definitions (
				action_type VARCHAR(255) PRIMARY KEY,
				pattern BOOLEAN NOT NULL DEFAULT FALSE,
				level VARCHAR(20) NOT NULL,
				category VARCHAR(100) NOT NULL DEFAULT '',
				reversible BOOLEAN NOT NULL DEFAULT TRUE,
				description TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE IF NOT EXISTS pending_approvals (
				id VARCHAR(255) PRIMARY KEY,
				instance_id VARCHAR(255) NOT NULL DEFAULT '',
				node_id VARCHAR(255) NOT NULL DEFAULT '',
				action_type VARCHAR(255) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				trust_level INTEGER NOT NULL,
				risk_level VARCHAR(20) NOT NULL,
				reason TEXT NOT NULL DEFAULT '',
				requested_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				decided_at TIMESTAMP WITH TIME ZONE,
				approved BOOLEAN,
				decided_by VARCHAR(255) NOT NULL DEFAULT '',
				decision_note TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX IF NOT EXISTS idx_approvals_pending
				ON pending_approvals(requested_at) WHERE decided_at IS NULL;

			CREATE TABLE IF NOT EXISTS execution_audit (
				id VARCHAR(255) PRIMARY KEY,
				action_type VARCHAR(255) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				trust_level INTEGER NOT NULL,
				risk_level VARCHAR(20) NOT NULL,
				decision VARCHAR(20) NOT NULL,
				reason TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_audit_action ON execution_audit(action_type, created_at);
		`,
	}
}
