package logging

// Field names used for structured logging.
const (
	FieldComponent = "component"
	FieldError     = "error"
	FieldOperation = "operation"
	FieldKey       = "key"
	FieldPattern   = "pattern"
	FieldUserID    = "user_id"
	FieldRecordID  = "daily_record_id"
	FieldTxID      = "transaction_id"
	FieldYear      = "year"
	FieldMonth     = "month"
	FieldDuration  = "duration_ms"
	FieldCount     = "count"
	FieldBackend   = "backend"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status_code"
)

// Component names.
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentStorage   = "storage"
	ComponentCache     = "cache"
	ComponentAggregate = "aggregate"
	ComponentLedger    = "ledger"
	ComponentReport    = "report"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentRepoCache = "repository_cache"
)

// Operation names.
const (
	OpGet        = "get"
	OpSet        = "set"
	OpDelete     = "delete"
	OpInvalidate = "invalidate"
	OpCreate     = "create"
	OpUpdate     = "update"
	OpPublish    = "publish"
	OpConsume    = "consume"
	OpStartup    = "startup"
	OpShutdown   = "shutdown"
)
