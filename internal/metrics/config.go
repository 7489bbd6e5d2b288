package metrics

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/speedctl/internal/errors"
)

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/speedctl/metrics.db"
)

type Config struct {
	Enabled bool
	DBPath  string
	// BackupDir receives a copy of the database before a schema reset.
	// Empty means a "backups" directory next to DBPath.
	BackupDir    string
	BatchSize    int
	BatchTimeout time.Duration
	// Retention bounds the history age; zero keeps everything.
	Retention time.Duration
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		BatchSize:    50,
		BatchTimeout: 5 * time.Second,
		Retention:    24 * time.Hour,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 1 {
		return errFactory.WithData(ErrInvalidConfig, "batch size must be positive")
	}
	if c.BatchTimeout < 0 || c.Retention < 0 {
		return errFactory.WithData(ErrInvalidConfig, "durations must not be negative")
	}

	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}

	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
