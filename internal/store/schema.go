package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
    key                  TEXT PRIMARY KEY,
    version              INTEGER NOT NULL,
    body                 TEXT NOT NULL,
    saved_at             TEXT NOT NULL
);
`
