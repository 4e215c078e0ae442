package workerpool

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	gferrors "github.com/vnykmshr/prioflow/pkg/common/errors"
	"github.com/vnykmshr/prioflow/pkg/common/validation"
	"github.com/vnykmshr/prioflow/pkg/metrics"
)

// DefaultName labels pools created without a name.
const DefaultName = "default"

// Config holds configuration options for creating a worker pool.
type Config struct {
	// WorkerCount is the number of workers started by the constructor.
	// Must be greater than 0.
	WorkerCount int

	// Name identifies the pool in logs and metric labels.
	Name string

	// Logger receives pool lifecycle events. Defaults to a no-op logger.
	Logger *zap.Logger

	// Metrics enables Prometheus instrumentation when non-nil.
	Metrics *metrics.Registry

	// PanicHandler is called when work panics. The panic is always stored on
	// the future as a *PanicError and logged, whether or not a handler is set.
	PanicHandler func(task TaskInfo, recovered interface{})

	// OnWorkerStart is called from the worker goroutine before it takes work.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called from the worker goroutine before it exits.
	OnWorkerStop func(workerID int)

	// OnTaskStart is called before user work begins.
	OnTaskStart func(workerID int, task TaskInfo)

	// OnTaskComplete is called after user work finishes, successfully or not.
	OnTaskComplete func(workerID int, result Result)
}

func (c Config) validate() error {
	return validation.ValidatePositive("workerpool", "WorkerCount", c.WorkerCount)
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// envConfig is the subset of Config that can be set from the environment.
type envConfig struct {
	Workers  int    `env:"WORKERS" envDefault:"4"`
	Name     string `env:"NAME" envDefault:"default"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Metrics  bool   `env:"METRICS" envDefault:"false"`
}

// LoadConfig builds a Config from PRIOFLOW_WORKERS, PRIOFLOW_NAME,
// PRIOFLOW_LOG_LEVEL and PRIOFLOW_METRICS. Metrics are registered on the
// default Prometheus registerer when enabled.
func LoadConfig() (Config, error) {
	return loadConfig(env.Options{Prefix: "PRIOFLOW_"})
}

func loadConfig(opts env.Options) (Config, error) {
	var ec envConfig
	if err := env.ParseWithOptions(&ec, opts); err != nil {
		return Config{}, fmt.Errorf("workerpool: parse environment: %w", err)
	}

	level, err := zapcore.ParseLevel(ec.LogLevel)
	if err != nil {
		return Config{}, gferrors.NewValidationError("workerpool", "LOG_LEVEL", ec.LogLevel, err.Error()).
			WithHint("use debug, info, warn or error")
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zcfg.Build()
	if err != nil {
		return Config{}, fmt.Errorf("workerpool: build logger: %w", err)
	}

	cfg := Config{
		WorkerCount: ec.Workers,
		Name:        ec.Name,
		Logger:      logger.Named("workerpool"),
	}
	if ec.Metrics {
		cfg.Metrics = metrics.Default()
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
