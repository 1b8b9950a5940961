package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type RelayConfig struct {
	ConfigName string `envconfig:"CONFIG_NAME" default:"dev"`
	Port       string `envconfig:"PORT" default:"8080"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	// Postgres; empty keeps messages in memory
	DBDSN             string        `envconfig:"DB_DSN"`
	DBMaxConns        int32         `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	DBMinConns        int32         `envconfig:"DB_POOL_MIN_CONNS" default:"1"`
	DBMaxConnLifetime time.Duration `envconfig:"DB_POOL_MAX_CONN_LIFETIME" default:"30m"`
	DBMaxConnIdleTime time.Duration `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME" default:"5m"`

	// WhatsApp Cloud API
	VerifyToken   string `envconfig:"VERIFY_TOKEN"`
	WhatsAppToken string `envconfig:"WHATSAPP_TOKEN"`
	PhoneNumberID string `envconfig:"PHONE_NUMBER_ID"`
	GraphVersion  string `envconfig:"GRAPH_VERSION" default:"v22.0"`
	GraphBaseURL  string `envconfig:"GRAPH_BASE_URL" default:"https://graph.facebook.com"`
	AppSecret     string `envconfig:"APP_SECRET"`
	DryRun        bool   `envconfig:"DRY_RUN" default:"false"`

	GraphRPS     float64       `envconfig:"GRAPH_RPS" default:"20"`
	GraphBurst   int           `envconfig:"GRAPH_BURST" default:"40"`
	GraphTimeout time.Duration `envconfig:"GRAPH_TIMEOUT" default:"15s"`

	InternalSendToken  string            `envconfig:"INTERNAL_SEND_TOKEN"`
	TenantRegistry     map[string]string `envconfig:"TENANT_REGISTRY"`
	TenantRegistryJSON string            `envconfig:"TENANT_REGISTRY_JSON"`

	OutboundDefaultDelay time.Duration `envconfig:"OUTBOUND_DEFAULT_DELAY" default:"0s"`
	SessionSweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"60s"`

	// Redis fast path for processed status ids; optional
	RedisAddr           string        `envconfig:"REDIS_ADDR"`
	RedisPassword       string        `envconfig:"REDIS_PASSWORD"`
	RedisDB             int           `envconfig:"REDIS_DB" default:"0"`
	ProcessedIDCacheTTL time.Duration `envconfig:"PROCESSED_ID_CACHE_TTL" default:"24h"`

	MenuGreeting     string `envconfig:"MENU_GREETING"`
	MenuWorkingHours string `envconfig:"MENU_WORKING_HOURS"`

	// dev endpoints (/dev/*) are mounted only when enabled
	DevRoutes bool `envconfig:"DEV_ROUTES" default:"true"`
}

type MockGraphConfig struct {
	Port      string `envconfig:"PORT" default:"8090"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	WebhookURL    string        `envconfig:"MOCK_WEBHOOK_URL"`
	AppSecret     string        `envconfig:"APP_SECRET"`
	StatusDelay   time.Duration `envconfig:"MOCK_STATUS_DELAY" default:"500ms"`
	FailRecipient string        `envconfig:"MOCK_FAIL_RECIPIENT"`
}

// LoadDotenv reads .env.<CONFIG_NAME> when it exists, else .env. Variables
// already set in the environment win.
func LoadDotenv() {
	if name := strings.TrimSpace(os.Getenv("CONFIG_NAME")); name != "" {
		if err := godotenv.Load(".env." + name); err == nil {
			return
		}
	}
	_ = godotenv.Load()
}

func LoadRelay() RelayConfig {
	LoadDotenv()
	var cfg RelayConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadMockGraph() MockGraphConfig {
	LoadDotenv()
	var cfg MockGraphConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
