// Package provision creates the target database for a replication, avoiding
// name collisions with databases that already exist on the server.
package provision

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/connstr"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/utils"
)

// adminDatabase is where provisioning connects, since the target database may
// not exist yet.
const adminDatabase = "master"

// collisionSuffixLayout is the compact second-resolution timestamp appended
// when the requested name is taken.
const collisionSuffixLayout = "20060102150405"

// Provisioner ensures a target database exists before import. Existing
// databases are never dropped or overwritten; a collision always yields a
// fresh suffixed name.
type Provisioner struct {
	Logger utils.Logger

	// now is swapped in tests for deterministic collision suffixes.
	now func() time.Time
}

// New creates a provisioner.
func New(logger utils.Logger) *Provisioner {
	return &Provisioner{Logger: logger}
}

func (p *Provisioner) timestamp() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// CollisionName derives the suffixed database name used when base is taken.
func CollisionName(base string, t time.Time) string {
	return base + "_" + t.Format(collisionSuffixLayout)
}

// EnsureTarget provisions the database named in rawConnStr on its server.
// It returns the name actually provisioned and the connection string rewritten
// to that name, since later phases must target the database that was created,
// not the one that was requested.
func (p *Provisioner) EnsureTarget(ctx context.Context, rawConnStr string) (string, string, error) {
	cfg, err := connstr.Parse(rawConnStr)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", utils.ErrProvisionFailed, err)
	}
	requested := cfg.Database
	if requested == "" {
		return "", "", fmt.Errorf("%w: target connection string names no database", utils.ErrProvisionFailed)
	}

	adminCfg := cfg.WithDatabase(adminDatabase)
	db, err := connstr.Connect(ctx, adminCfg, connstr.SetDatabase(rawConnStr, adminDatabase), p.Logger)
	if err != nil {
		return "", "", fmt.Errorf("%w: reach administrative database on %s: %v", utils.ErrProvisionFailed, cfg.Host, err)
	}
	defer db.Close()

	name := requested
	exists, err := databaseExists(ctx, db, name)
	if err != nil {
		return "", "", fmt.Errorf("%w: check for existing database %s: %v", utils.ErrProvisionFailed, name, err)
	}
	if exists {
		name = CollisionName(requested, p.timestamp())
		p.Logger.Warn("Database %s already exists on %s, provisioning %s instead", requested, cfg.Host, name)
	}

	if err := createDatabase(ctx, db, name); err != nil {
		return "", "", fmt.Errorf("%w: create database %s: %v", utils.ErrProvisionFailed, name, err)
	}
	p.Logger.Success("Provisioned target database %s", name)

	return name, connstr.SetDatabase(rawConnStr, name), nil
}

func databaseExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sys.databases WHERE name = @name",
		sql.Named("name", name),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func createDatabase(ctx context.Context, db *sql.DB, name string) error {
	// CREATE DATABASE does not accept parameters; the name is bracket-quoted.
	_, err := db.ExecContext(ctx, "CREATE DATABASE "+utils.QuoteIdent(name))
	return err
}
