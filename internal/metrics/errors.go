package metrics

import "codeberg.org/mutker/speedctl/internal/errors"

// Codes shared with the rest of the daemon.
const (
	ErrInvalidConfig    = errors.ErrInvalidConfig
	ErrStorageInit      = errors.ErrInitMetrics
	ErrStorageClose     = errors.ErrCloseMetrics
	ErrRecordFailed     = errors.ErrCollectMetrics
	ErrOperationTimeout = errors.ErrTimeout
)

// History specific codes.
const (
	ErrInvalidDBPath          = errors.ErrorCode("metrics_invalid_db_path")
	ErrInvalidSnapshot        = errors.ErrorCode("metrics_invalid_snapshot")
	ErrClosed                 = errors.ErrorCode("metrics_history_closed")
	ErrSchemaInitFailed       = errors.ErrorCode("metrics_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("metrics_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("metrics_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("metrics_transaction_failed")
	ErrPruneFailed            = errors.ErrorCode("metrics_prune_failed")
)
