package config

// EnvPrefix is the envconfig prefix for every Forkline variable.
const EnvPrefix = "forkline"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

// Environment variable names referenced outside struct tags (tests, errors).
const (
	EnvAppEnv     = "FORKLINE_APP_ENV"
	EnvPort       = "FORKLINE_APP_PORT"
	EnvAPIKey     = "FORKLINE_API_KEY"
	EnvDBDSN      = "FORKLINE_DB_DSN"
	EnvDBHost     = "FORKLINE_DB_HOST"
	EnvDBUser     = "FORKLINE_DB_USER"
	EnvDBName     = "FORKLINE_DB_NAME"
	EnvRedisURL   = "FORKLINE_REDIS_URL"
	EnvGCPProject = "FORKLINE_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
