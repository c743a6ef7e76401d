package docstore

// schemaSQL is portable across SQLite and PostgreSQL.
var schemaSQL = []string{
	`CREATE TABLE IF NOT EXISTS pool (
    id                   INTEGER PRIMARY KEY CHECK (id = 1),
    amount               BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS members (
    id                   TEXT PRIMARY KEY,
    name                 TEXT NOT NULL,
    balance              BIGINT NOT NULL,
    position             BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS transactions (
    id                   TEXT PRIMARY KEY,
    type                 TEXT NOT NULL,
    source_kind          TEXT NOT NULL,
    member_id            TEXT NOT NULL DEFAULT '',
    amount               BIGINT NOT NULL,
    descr                TEXT NOT NULL DEFAULT '',
    date                 TEXT NOT NULL,
    created_at           TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_member ON transactions(member_id)`,
}
