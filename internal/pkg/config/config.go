package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const defaultMongoDatabase = "intrusion-detection"

// Config holds all application configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8000"`
	AdminAddr string `env:"ADMIN_ADDR" envDefault:":9091"`

	StoreBackend string        `env:"STORE_BACKEND" envDefault:"mongo" validate:"oneof=mongo postgres redis file"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s" validate:"gt=0"`

	MongoURI        string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017/intrusion-detection"`
	MongoDatabase   string `env:"MONGODB_DATABASE"`
	MongoCollection string `env:"MONGODB_COLLECTION" envDefault:"logs"`

	PostgresURL   string `env:"POSTGRES_URL" validate:"required_if=StoreBackend postgres"`
	PostgresTable string `env:"POSTGRES_TABLE" envDefault:"alert_events"`

	RedisAddr         string `env:"REDIS_ADDR" validate:"required_if=StoreBackend redis"`
	RedisStream       string `env:"REDIS_STREAM" envDefault:"alert_events"`
	RedisStreamMaxLen int64  `env:"REDIS_STREAM_MAXLEN" envDefault:"100000" validate:"gte=0"`

	WALPath        string `env:"WAL_PATH" envDefault:"./data/events"`
	WALSegmentSize int64  `env:"WAL_SEGMENT_SIZE_BYTES" envDefault:"16777216"`     // 16MB
	WALMaxDiskSize int64  `env:"WAL_MAX_DISK_SIZE_BYTES" envDefault:"1073741824"` // 1GB

	NATSURL     string `env:"NATS_URL"`
	NATSSubject string `env:"NATS_SUBJECT" envDefault:"alerts.ingested"`

	SimulatorEnabled     bool   `env:"SIMULATOR_ENABLED" envDefault:"true"`
	SimulatorMinInterval int    `env:"SIMULATOR_MIN_INTERVAL" envDefault:"5" validate:"gte=0"`
	SimulatorMaxInterval int    `env:"SIMULATOR_MAX_INTERVAL" envDefault:"30" validate:"gt=0,gtefield=SimulatorMinInterval"`
	VocabularyPath       string `env:"GENERATOR_VOCABULARY_PATH"`

	BroadcastSendTimeout time.Duration `env:"BROADCAST_SEND_TIMEOUT" envDefault:"2s" validate:"gt=0"`
	SubscriberBuffer     int           `env:"SUBSCRIBER_BUFFER" envDefault:"64" validate:"gt=0"`
	MaxEventSize         int64         `env:"MAX_EVENT_SIZE_BYTES" envDefault:"65536" validate:"gt=0"`
	RecentEventsLimit    int           `env:"RECENT_EVENTS_LIMIT" envDefault:"100" validate:"gt=0,lte=1000"`

	RedactionFields    string   `env:"DETAILS_REDACTION_FIELDS" envDefault:"password,credit_card,ssn"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	SubmitRateLimit    float64  `env:"SUBMIT_RATE_LIMIT" envDefault:"0" validate:"gte=0"`
	SubmitRateBurst    int      `env:"SUBMIT_RATE_BURST" envDefault:"20" validate:"gt=0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = databaseFromURI(cfg.MongoURI)
	}

	return cfg, nil
}

// Validate checks field constraints that env parsing alone cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RedactionFieldList splits DETAILS_REDACTION_FIELDS, dropping blanks.
func (c *Config) RedactionFieldList() []string {
	var fields []string
	for _, f := range strings.Split(c.RedactionFields, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultMongoDatabase
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return defaultMongoDatabase
}
