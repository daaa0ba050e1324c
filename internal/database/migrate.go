package database

import (
	"database/sql"
	"fmt"

	"github.com/lirantal/devrel-cfp-committee/internal/logging"
)

// nodeTables are the tables the Node CLI created. Its databases carry them
// all with user_version left at 0.
var nodeTables = []string{"sessions", "speakers", "session_speakers"}

func schemaVersion(conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading user_version: %w", err)
	}
	return v, nil
}

func setSchemaVersion(conn *sql.DB, v int) error {
	// PRAGMA arguments cannot be bound.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return fmt.Errorf("writing user_version %d: %w", v, err)
	}
	return nil
}

// isNodeDB reports whether an unversioned database holds the full Node
// schema, which matches migration 1. A partial set is not stamped.
func isNodeDB(conn *sql.DB) (bool, error) {
	var n int
	err := conn.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN (?, ?, ?)`,
		nodeTables[0], nodeTables[1], nodeTables[2],
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("looking for Node tables: %w", err)
	}
	return n == len(nodeTables), nil
}

// baseline returns the version to migrate from. A Node database is stamped
// at 1 so its rows are kept and only later migrations run.
func baseline(conn *sql.DB, logger *logging.Logger) (int, error) {
	v, err := schemaVersion(conn)
	if err != nil || v != 0 {
		return v, err
	}
	node, err := isNodeDB(conn)
	if err != nil || !node {
		return 0, err
	}
	logger.Info("adopting database written by the Node CLI", "stamped_version", 1)
	if err := setSchemaVersion(conn, 1); err != nil {
		return 0, err
	}
	return 1, nil
}

func applyMigration(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("migration %d: begin: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %d: commit: %w", m.Version, err)
	}
	// Written outside the transaction; the DDL tolerates a re-run.
	return setSchemaVersion(conn, m.Version)
}

// migrate applies every migration newer than the database's user_version.
func migrate(conn *sql.DB, logger *logging.Logger) error {
	from, err := baseline(conn, logger)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.Version <= from {
			continue
		}
		logger.Info("applying migration", "version", m.Version, "description", m.Description)
		if err := applyMigration(conn, m); err != nil {
			return err
		}
	}
	return nil
}
