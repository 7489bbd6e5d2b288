package metrics

import (
	"database/sql"

	"codeberg.org/mutker/speedctl/internal/errors"
	"codeberg.org/mutker/speedctl/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS control_snapshots (
	       timestamp_ms  INTEGER PRIMARY KEY,
	       period_ticks  INTEGER NOT NULL CHECK (typeof(period_ticks) = 'integer'),
	       valid         INTEGER NOT NULL CHECK (valid IN (0, 1)),
	       mode          TEXT    NOT NULL CHECK (mode IN ('automatic', 'manual')),
	       active_speed  INTEGER NOT NULL CHECK (typeof(active_speed) = 'integer'),
	       duty_cycle    INTEGER NOT NULL CHECK (typeof(duty_cycle) = 'integer'),
	       online        INTEGER NOT NULL CHECK (online IN (0, 1))
	   );`

	insertSnapshotSQL = `
    INSERT OR REPLACE INTO control_snapshots (
        timestamp_ms, period_ticks, valid, mode,
        active_speed, duty_cycle, online
    ) VALUES (?, ?, ?, ?, ?, ?, ?)`

	pruneSnapshotsSQL = `DELETE FROM control_snapshots WHERE timestamp_ms < ?`
)

var dataTables = []string{"control_snapshots", "schema_versions"}

// InitSchema creates the tables and records the current version.
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback schema creation")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "create_tables",
			Error: err.Error(),
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "record_version",
			Error: err.Error(),
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().Int("version", SchemaVersion).Msg("Metrics schema initialized")

	return nil
}

// GetSchemaVersion returns the recorded version, or 0 for a fresh database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`SELECT version FROM schema_versions ORDER BY version DESC LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	return version, nil
}

func TableExists(db *sql.DB, table string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, table).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: table,
			Error: err.Error(),
		})
	}

	return exists, nil
}
