// Package db persists the signed-in credential pair in a local SQLite file.
package db

import "time"

// Keys of the credential pair. They are always written and cleared together.
const (
	KeyToken = "auth_token"
	KeyUser  = "auth_user"
)

// Credential is one row of the credentials table.
type Credential struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

const schema = `
	CREATE TABLE IF NOT EXISTS credentials (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updatedAt REAL NOT NULL
	);
`
