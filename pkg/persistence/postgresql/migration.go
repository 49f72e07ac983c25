package postgresql

// migrations returns the versioned schema for the PostgreSQL backend.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS compositions (
				id         TEXT PRIMARY KEY,
				account_id TEXT NOT NULL,
				document   JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_compositions_account
				ON compositions (account_id);
			CREATE INDEX IF NOT EXISTS idx_compositions_tags
				ON compositions USING GIN ((document -> 'tags'));

			CREATE TABLE IF NOT EXISTS executions (
				id             TEXT PRIMARY KEY,
				composition_id TEXT NOT NULL,
				account_id     TEXT NOT NULL,
				status         TEXT NOT NULL,
				document       JSONB NOT NULL,
				created_at     TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_executions_composition
				ON executions (composition_id);
			CREATE INDEX IF NOT EXISTS idx_executions_account
				ON executions (account_id);
			CREATE INDEX IF NOT EXISTS idx_executions_status
				ON executions (status);

			CREATE TABLE IF NOT EXISTS schedules (
				id             TEXT PRIMARY KEY,
				composition_id TEXT NOT NULL,
				document       JSONB NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_schedules_composition
				ON schedules (composition_id);
		`,
	}
}
