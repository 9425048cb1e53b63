package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config is the typed view of the environment used by cmd/server.
type Config struct {
	Port          string
	PublicBaseURL string
	JWTSecret     string

	StorageDriver string // "postgres" or "memory"
	DB            DBConfig
	Redis         RedisConfig

	Paystack PaystackConfig
	Monnify  MonnifyConfig
	Manual   ManualConfig

	Fees   FeeConfig
	Limits LimitConfig

	// SandboxMode disables webhook signature enforcement. Never set in production.
	SandboxMode       bool
	SandboxAutoSettle bool

	ProviderTimeout  time.Duration
	TokenRefreshSkew time.Duration

	SweepInterval       time.Duration
	SweepThreshold      time.Duration
	SweepBatchSize      int
	WithdrawalProvider  string
	ProofDir            string
	StatusCacheTTL      time.Duration
	InitiationRateLimit int
}

type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type PaystackConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
}

type MonnifyConfig struct {
	BaseURL             string
	APIKey              string
	SecretKey           string
	ContractCode        string
	SourceAccountNumber string
	RedirectURL         string
}

type ManualConfig struct {
	BankName      string
	AccountNumber string
	AccountName   string
}

type FeeConfig struct {
	GatewayPercent decimal.Decimal // e.g. 2.2 for 2.2%
	ManualFlat     decimal.Decimal
	WithdrawalFlat decimal.Decimal
}

type LimitConfig struct {
	MinDeposit    decimal.Decimal
	MaxDeposit    decimal.Decimal
	MinWithdrawal decimal.Decimal
	MaxWithdrawal decimal.Decimal
}

// Load reads the full configuration from the environment.
func Load() *Config {
	return &Config{
		Port:          GetEnv("PORT", "3000"),
		PublicBaseURL: GetEnv("PUBLIC_BASE_URL", "http://localhost:3000"),
		JWTSecret:     GetEnv("JWT_SECRET", "settlr"),
		StorageDriver: GetEnv("STORAGE_DRIVER", "postgres"),
		DB: DBConfig{
			Host:            GetEnv("DB_HOST", "localhost"),
			Port:            GetEnv("DB_PORT", "5432"),
			User:            GetEnv("DB_USER", "postgres"),
			Password:        GetEnv("DB_PASSWORD", "postgres"),
			Name:            GetEnv("DB_NAME", "settlr"),
			SSLMode:         GetEnv("DB_SSLMODE", "disable"),
			MaxIdleConns:    GetIntEnv("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    GetIntEnv("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  GetBoolEnv("REDIS_ENABLED", true),
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetIntEnv("REDIS_DB", 0),
		},
		Paystack: PaystackConfig{
			BaseURL:       GetEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			SecretKey:     GetEnv("PAYSTACK_SECRET_KEY", ""),
			WebhookSecret: GetEnv("PAYSTACK_WEBHOOK_SECRET", GetEnv("PAYSTACK_SECRET_KEY", "")),
		},
		Monnify: MonnifyConfig{
			BaseURL:             GetEnv("MONNIFY_BASE_URL", "https://sandbox.monnify.com"),
			APIKey:              GetEnv("MONNIFY_API_KEY", ""),
			SecretKey:           GetEnv("MONNIFY_SECRET_KEY", ""),
			ContractCode:        GetEnv("MONNIFY_CONTRACT_CODE", ""),
			SourceAccountNumber: GetEnv("MONNIFY_SOURCE_ACCOUNT", ""),
			RedirectURL:         GetEnv("MONNIFY_REDIRECT_URL", ""),
		},
		Manual: ManualConfig{
			BankName:      GetEnv("MANUAL_BANK_NAME", ""),
			AccountNumber: GetEnv("MANUAL_ACCOUNT_NUMBER", ""),
			AccountName:   GetEnv("MANUAL_ACCOUNT_NAME", ""),
		},
		Fees: FeeConfig{
			GatewayPercent: GetDecimalEnv("TRANSACTION_CHARGE_PERCENT", decimal.RequireFromString("2.2")),
			ManualFlat:     GetDecimalEnv("MANUAL_DEPOSIT_FEE", decimal.NewFromInt(100)),
			WithdrawalFlat: GetDecimalEnv("WITHDRAWAL_FEE", decimal.Zero),
		},
		Limits: LimitConfig{
			MinDeposit:    GetDecimalEnv("MIN_DEPOSIT", decimal.NewFromInt(100)),
			MaxDeposit:    GetDecimalEnv("MAX_DEPOSIT", decimal.NewFromInt(5_000_000)),
			MinWithdrawal: GetDecimalEnv("MIN_WITHDRAWAL", decimal.NewFromInt(1)),
			MaxWithdrawal: GetDecimalEnv("MAX_WITHDRAWAL", decimal.NewFromInt(5_000_000)),
		},
		SandboxMode:         GetBoolEnv("SANDBOX_MODE", false),
		SandboxAutoSettle:   GetBoolEnv("SANDBOX_AUTO_SETTLE", false),
		ProviderTimeout:     GetDurationEnv("PROVIDER_TIMEOUT", 30*time.Second),
		TokenRefreshSkew:    GetDurationEnv("TOKEN_REFRESH_SKEW", time.Minute),
		SweepInterval:       GetDurationEnv("SWEEP_INTERVAL", 5*time.Minute),
		SweepThreshold:      GetDurationEnv("SWEEP_THRESHOLD", 10*time.Minute),
		SweepBatchSize:      GetIntEnv("SWEEP_BATCH_SIZE", 100),
		WithdrawalProvider:  GetEnv("WITHDRAWAL_PROVIDER", "gateway_a"),
		ProofDir:            GetEnv("PROOF_DIR", "./storage/deposits"),
		StatusCacheTTL:      GetDurationEnv("STATUS_CACHE_TTL", 10*time.Minute),
		InitiationRateLimit: GetIntEnv("INITIATION_RATE_LIMIT", 10),
	}
}
