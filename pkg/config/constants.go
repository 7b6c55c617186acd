package config

const (
	EnvPrefix = "VITRO"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"

	ReopenPolicyQuarantine = "quarantine"
	ReopenPolicyReadmit    = "readmit"
)

const (
	EnvAppEnv   = "VITRO_APP_ENV"
	EnvPort     = "VITRO_APP_PORT"
	EnvLogLevel = "VITRO_LOG_LEVEL"

	EnvDBDSN        = "VITRO_DB_DSN"
	EnvDBDriver     = "VITRO_DB_DRIVER"
	EnvDBSQLitePath = "VITRO_DB_SQLITE_PATH"
	EnvDBHost       = "VITRO_DB_HOST"
	EnvDBUser       = "VITRO_DB_USER"
	EnvDBName       = "VITRO_DB_NAME"

	EnvRedisURL = "VITRO_REDIS_URL"

	EnvKameTokenURL     = "VITRO_KAME_TOKEN_URL"
	EnvKameBaseURL      = "VITRO_KAME_BASE_URL"
	EnvKameClientID     = "VITRO_KAME_CLIENT_ID"
	EnvKameClientSecret = "VITRO_KAME_CLIENT_SECRET"
	EnvKamePerPage      = "VITRO_KAME_PER_PAGE"

	EnvReceivablesWindowStart  = "VITRO_RECEIVABLES_WINDOW_START"
	EnvReceivablesReopenPolicy = "VITRO_RECEIVABLES_REOPEN_POLICY"
	EnvReceivablesTimezone     = "VITRO_RECEIVABLES_TIMEZONE"

	EnvCronInterval = "VITRO_CRON_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
