package config

const (
	EnvPrefix = "SHELF"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv   = "SHELF_APP_ENV"
	EnvDBDSN    = "SHELF_DB_DSN"
	EnvDBHost   = "SHELF_DB_HOST"
	EnvDBUser   = "SHELF_DB_USER"
	EnvDBName   = "SHELF_DB_NAME"
	EnvRedisURL = "SHELF_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
