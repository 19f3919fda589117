// Package store persists saved connections, configuration scripts, and
// replication configurations. Connection strings are encrypted at rest.
package store

import "time"

// Connection is a saved, named connection string. ConnectionString is always
// cleartext in memory; implementations encrypt it at rest.
type Connection struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ConnectionString string    `json:"connectionString"`
	IsTarget         bool      `json:"isTarget"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Script is a saved post-migration script.
type Script struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Settings are the per-configuration replication options.
type Settings struct {
	// TargetDatabaseName overrides the database named in the target
	// connection string when set.
	TargetDatabaseName string `json:"targetDatabaseName,omitempty"`
	// OverwriteExisting records the operator's intent. Provisioning never
	// drops an existing database regardless; a collision yields a suffixed
	// name instead.
	OverwriteExisting bool `json:"overwriteExisting"`
	// KeepArchive skips deleting the exported archive after import.
	KeepArchive bool `json:"keepArchive"`
}

// ReplicationConfig ties a source connection, a target connection, and an
// ordered set of scripts into a reusable replication.
type ReplicationConfig struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	SourceID  string     `json:"sourceId"`
	TargetID  string     `json:"targetId"`
	ScriptIDs []string   `json:"scriptIds"`
	Settings  Settings   `json:"settings"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
}
