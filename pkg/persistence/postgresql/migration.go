package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE automations (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				column_id VARCHAR(255) NOT NULL,
				funnel_id VARCHAR(255),
				trigger VARCHAR(50) NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				entry_delay JSONB,
				actions JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_automations_column_id ON automations(column_id);

			CREATE TABLE pause_states (
				lead_id VARCHAR(255) PRIMARY KEY,
				automation_id VARCHAR(255) NOT NULL,
				column_id VARCHAR(255) NOT NULL,
				action_id VARCHAR(255) NOT NULL,
				paused_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE lead_current_actions (
				lead_id VARCHAR(255) PRIMARY KEY,
				action_id VARCHAR(255) NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
		`,
		2: `
			CREATE TABLE batch_transfers (
				id VARCHAR(511) PRIMARY KEY,
				automation_id VARCHAR(255) NOT NULL,
				action_id VARCHAR(255) NOT NULL,
				source_funnel_id VARCHAR(255),
				source_column_id VARCHAR(255) NOT NULL,
				target_funnel_id VARCHAR(255) NOT NULL,
				target_column_id VARCHAR(255) NOT NULL,
				batch_size INT NOT NULL,
				interval JSONB NOT NULL,
				quota INT NOT NULL,
				processed_count INT NOT NULL DEFAULT 0,
				last_execution_at TIMESTAMP WITH TIME ZONE,
				next_execution_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_batch_transfers_active ON batch_transfers(active);
		`,
	}
}
