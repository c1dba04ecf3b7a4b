package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	API          APIConfig
	DB           DBConfig
	Redis        RedisConfig
	Password     PasswordConfig
	Settlement   SettlementConfig
	Delivery     DeliveryConfig
	Wallet       WalletConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FORKLINE_APP_ENV" required:"true"`
	Port         string `envconfig:"FORKLINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FORKLINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FORKLINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// APIConfig carries the shared key that mobile clients present on every call.
type APIConfig struct {
	Key string `envconfig:"FORKLINE_API_KEY" required:"true"`
}

type DBConfig struct {
	DSN    string `envconfig:"FORKLINE_DB_DSN"`
	Driver string `envconfig:"FORKLINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FORKLINE_DB_HOST"`
	LegacyPort     int    `envconfig:"FORKLINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FORKLINE_DB_USER"`
	LegacyPassword string `envconfig:"FORKLINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"FORKLINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"FORKLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FORKLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FORKLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FORKLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FORKLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FORKLINE_REDIS_URL" required:"true"`
	Password     string        `envconfig:"FORKLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"FORKLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FORKLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FORKLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FORKLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FORKLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FORKLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PasswordConfig tunes the Argon2id parameters for password and wallet PIN
// hashes.
type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"FORKLINE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"FORKLINE_ARGON_TIME" default:"1"`
	ArgonParallelism int `envconfig:"FORKLINE_ARGON_PARALLELISM" default:"4"`
	ArgonSaltLen     int `envconfig:"FORKLINE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"FORKLINE_ARGON_KEY_LEN" default:"32"`
}

// SettlementConfig is the injected policy for every money movement. The legacy
// system hardcoded these per endpoint; here they live in one place and reach
// the settlement engine through its constructor only.
type SettlementConfig struct {
	DefaultCommissionRate string `envconfig:"FORKLINE_COMMISSION_RATE" default:"0.05"`
	CardProcessingFeeRate string `envconfig:"FORKLINE_CARD_FEE_RATE" default:"0.029"`

	RefundPctPending        int `envconfig:"FORKLINE_REFUND_PCT_PENDING" default:"100"`
	RefundPctAccepted       int `envconfig:"FORKLINE_REFUND_PCT_ACCEPTED" default:"100"`
	RefundPctPreparing      int `envconfig:"FORKLINE_REFUND_PCT_PREPARING" default:"80"`
	RefundPctReadyForPickup int `envconfig:"FORKLINE_REFUND_PCT_READY" default:"50"`
	RefundPctInTransit      int `envconfig:"FORKLINE_REFUND_PCT_IN_TRANSIT" default:"50"`

	MaxAttempts    int           `envconfig:"FORKLINE_SETTLEMENT_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"FORKLINE_SETTLEMENT_RETRY_BASE_DELAY" default:"25ms"`

	// PlatformOwnerID identifies the single platform wallet that holds
	// commissions, card fees, and delivery-fee escrow.
	PlatformOwnerID string `envconfig:"FORKLINE_PLATFORM_WALLET_OWNER_ID" default:"00000000-0000-0000-0000-000000000001"`
}

// CommissionRate parses the configured default platform commission.
func (s SettlementConfig) CommissionRate() decimal.Decimal {
	rate, err := decimal.NewFromString(s.DefaultCommissionRate)
	if err != nil {
		return decimal.NewFromFloat(0.05)
	}
	return rate
}

// CardFeeRate parses the configured card processing fee rate.
func (s SettlementConfig) CardFeeRate() decimal.Decimal {
	rate, err := decimal.NewFromString(s.CardProcessingFeeRate)
	if err != nil {
		return decimal.NewFromFloat(0.029)
	}
	return rate
}

// PlatformWalletOwner parses the platform wallet owner id.
func (s SettlementConfig) PlatformWalletOwner() uuid.UUID {
	id, err := uuid.Parse(s.PlatformOwnerID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (s SettlementConfig) validate() error {
	if _, err := decimal.NewFromString(s.DefaultCommissionRate); err != nil {
		return fmt.Errorf("invalid commission rate %q: %w", s.DefaultCommissionRate, err)
	}
	if _, err := uuid.Parse(s.PlatformOwnerID); err != nil {
		return fmt.Errorf("invalid platform wallet owner id %q: %w", s.PlatformOwnerID, err)
	}
	if _, err := decimal.NewFromString(s.CardProcessingFeeRate); err != nil {
		return fmt.Errorf("invalid card fee rate %q: %w", s.CardProcessingFeeRate, err)
	}
	for _, pct := range []int{s.RefundPctPending, s.RefundPctAccepted, s.RefundPctPreparing, s.RefundPctReadyForPickup, s.RefundPctInTransit} {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("refund percentage %d out of range", pct)
		}
	}
	return nil
}

type DeliveryConfig struct {
	FlatFee         string  `envconfig:"FORKLINE_DELIVERY_FLAT_FEE" default:"3.50"`
	FreeDeliveryMin string  `envconfig:"FORKLINE_FREE_DELIVERY_MIN" default:"25.00"`
	MaxRiderKM      float64 `envconfig:"FORKLINE_MAX_RIDER_DISTANCE_KM" default:"15"`
}

// FlatFeeAmount parses the fallback delivery fee credited to riders when the
// order has none recorded.
func (d DeliveryConfig) FlatFeeAmount() decimal.Decimal {
	fee, err := decimal.NewFromString(d.FlatFee)
	if err != nil {
		return decimal.NewFromFloat(3.5)
	}
	return fee
}

// FreeDeliveryMinimum parses the subtotal above which delivery is free.
func (d DeliveryConfig) FreeDeliveryMinimum() decimal.Decimal {
	min, err := decimal.NewFromString(d.FreeDeliveryMin)
	if err != nil {
		return decimal.NewFromFloat(25)
	}
	return min
}

type WalletConfig struct {
	DefaultDailyLimit string `envconfig:"FORKLINE_WALLET_DAILY_LIMIT" default:"1000.00"`
}

// DailyLimit parses the default per-wallet daily spend limit.
func (w WalletConfig) DailyLimit() decimal.Decimal {
	limit, err := decimal.NewFromString(w.DefaultDailyLimit)
	if err != nil {
		return decimal.NewFromInt(1000)
	}
	return limit
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FORKLINE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FORKLINE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"FORKLINE_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"FORKLINE_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"FORKLINE_PUBSUB_NOTIFICATION_TOPIC" default:"forkline-notification-events"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"FORKLINE_BIGQUERY_DATASET" default:"forkline"`
	OrderEventsTable string `envconfig:"FORKLINE_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
	BatchSize        int    `envconfig:"FORKLINE_BIGQUERY_BATCH_SIZE" default:"50"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
