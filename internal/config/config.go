package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Queue    *queueConfig
	Storage  *storageConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"conveyor"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address        string        `envconfig:"CONVEYOR_ADDRESS" default:":8000"`
	MetricsAddress string        `envconfig:"CONVEYOR_METRICS_ADDRESS" default:":8080"`
	BaseUrl        string        `envconfig:"CONVEYOR_BASE_URL" default:"http://localhost:8000"`
	DeploymentName string        `envconfig:"CONVEYOR_DEPLOYMENT_NAME" default:"conveyor"`
	LogLevel       string        `envconfig:"CONVEYOR_LOG_LEVEL" default:"info"`
	AllowedOrigins []string      `envconfig:"CONVEYOR_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	MaxPageSize    int           `envconfig:"CONVEYOR_MAX_PAGE_SIZE" default:"500"`
	StageTimeout   time.Duration `envconfig:"CONVEYOR_STAGE_TIMEOUT" default:"2h"`
	SweepInterval  time.Duration `envconfig:"CONVEYOR_SWEEP_INTERVAL" default:"1m"`
	// WorkerTypes is the set of worker kinds this deployment can route
	// to. A pipeline naming any other type is rejected at creation.
	WorkerTypes []string `envconfig:"CONVEYOR_WORKER_TYPES" default:"precheck,build,execute"`
}

type queueConfig struct {
	// Url is the AMQP broker address. Empty selects the in-process
	// queue, which only makes sense for a single-binary dev deployment
	// or tests.
	Url string `envconfig:"CONVEYOR_QUEUE_URL" default:""`
}

type storageConfig struct {
	Provider  string `envconfig:"CONVEYOR_STORAGE_PROVIDER" default:"local"`
	LocalRoot string `envconfig:"CONVEYOR_STORAGE_ROOT" default:"/var/lib/conveyor/artifacts"`
	Endpoint  string `envconfig:"CONVEYOR_S3_ENDPOINT" default:""`
	Bucket    string `envconfig:"CONVEYOR_S3_BUCKET" default:"conveyor-artifacts"`
	AccessKey string `envconfig:"CONVEYOR_S3_ACCESS_KEY" default:""`
	SecretKey string `envconfig:"CONVEYOR_S3_SECRET_KEY" default:""`
	UseSSL    bool   `envconfig:"CONVEYOR_S3_USE_SSL" default:"false"`
}

func New() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewDefault returns a configuration suitable for tests: in-memory
// sqlite store, in-process queue, local storage under a temp root.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{
			Type: "sqlite",
			Name: ":memory:",
		},
		Service: &svcConfig{
			Address:        ":8000",
			BaseUrl:        "http://localhost:8000",
			DeploymentName: "conveyor-test",
			LogLevel:       "info",
			MaxPageSize:    500,
			StageTimeout:   2 * time.Hour,
			SweepInterval:  time.Minute,
			WorkerTypes:    []string{"precheck", "build", "execute"},
		},
		Queue:   &queueConfig{},
		Storage: &storageConfig{Provider: "local", LocalRoot: ""},
	}
}
