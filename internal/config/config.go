// Package config загружает конфигурацию сервисов Portfolium.
//
// Источники (по убыванию приоритета):
//  1. Переменные окружения PORTFOLIUM_* (например PORTFOLIUM_ENGINE_STRICT)
//     и исторические API_PORT, DB_URL, RABBITMQ_URL, LOG_LEVEL, LOG_FORMAT
//  2. Файл portfolium.yaml (текущий каталог или /etc/portfolium) либо явный путь
//  3. Значения по умолчанию
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shaiso/Portfolium/internal/domain"
	"github.com/shaiso/Portfolium/internal/engine"
	"github.com/shaiso/Portfolium/internal/scheduler"
)

// EnvPrefix - префикс переменных окружения.
const EnvPrefix = "PORTFOLIUM"

// ErrInvalidConfig - конфигурация не прошла проверку.
var ErrInvalidConfig = errors.New("invalid config")

// Config - конфигурация всех сервисов.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Database  DatabaseConfig   `mapstructure:"database"`
	RabbitMQ  RabbitMQConfig   `mapstructure:"rabbitmq"`
	Log       LogConfig        `mapstructure:"log"`
	Engine    EngineConfig     `mapstructure:"engine"`
	Universe  UniverseConfig   `mapstructure:"universe"`
	Worker    WorkerConfig     `mapstructure:"worker"`
	Scheduler SchedulerConfig  `mapstructure:"scheduler"`
	Schedules []ScheduleConfig `mapstructure:"schedules"`
}

// ServerConfig - HTTP API.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr возвращает адрес для http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// DatabaseConfig - история запусков: Postgres DSN или sqlite://путь.
// Пустой URL: хранение в памяти.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RabbitMQConfig - очередь асинхронных запусков. Пустой URL: только polling.
type RabbitMQConfig struct {
	URL string `mapstructure:"url"`
}

// LogConfig - параметры логирования.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig - параметры выполнения планов.
type EngineConfig struct {
	// ConfidenceThreshold - минимальная уверенность планировщика, с которой
	// план принимается к выполнению.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`

	// TaskTimeout - таймаут одного вызова инструмента (0: без таймаута).
	TaskTimeout time.Duration `mapstructure:"task_timeout"`

	// Strict включает проверку конфликтов read/write внутри этапа.
	Strict bool `mapstructure:"strict"`
}

// UniverseConfig - вселенная активов и портфели, создаваемые при старте.
type UniverseConfig struct {
	Seed            uint64   `mapstructure:"seed"`
	AssetsPerSector int      `mapstructure:"assets_per_sector"`
	PortfolioSize   int      `mapstructure:"portfolio_size"`
	Portfolios      []string `mapstructure:"portfolios"`
}

// WorkerConfig - асинхронное выполнение.
type WorkerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	Concurrency  int           `mapstructure:"concurrency"`
}

// SchedulerConfig - планировщик.
type SchedulerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ScheduleConfig - план, запускаемый по cron-выражению.
type ScheduleConfig struct {
	Name     string `mapstructure:"name"`
	Cron     string `mapstructure:"cron"`
	Timezone string `mapstructure:"timezone"`
	Enabled  bool   `mapstructure:"enabled"`

	// Plan - план в любой форме, которую принимает engine.ParsePlan.
	Plan any `mapstructure:"plan"`
}

// ParsePlan разбирает Plan.
func (s ScheduleConfig) ParsePlan() (domain.Plan, error) {
	data, err := json.Marshal(s.Plan)
	if err != nil {
		return domain.Plan{}, fmt.Errorf("schedule %s: encode plan: %w", s.Name, err)
	}
	plan, err := engine.ParsePlan(data, engine.FormatJSON)
	if err != nil {
		return domain.Plan{}, fmt.Errorf("schedule %s: %w", s.Name, err)
	}
	if err := engine.Validate(plan, nil); err != nil {
		return domain.Plan{}, fmt.Errorf("schedule %s: %w", s.Name, err)
	}
	return plan, nil
}

// ToScheduledPlan переводит запись конфигурации в domain.ScheduledPlan.
func (s ScheduleConfig) ToScheduledPlan() (domain.ScheduledPlan, error) {
	plan, err := s.ParsePlan()
	if err != nil {
		return domain.ScheduledPlan{}, err
	}
	return domain.ScheduledPlan{
		Name:     s.Name,
		CronExpr: s.Cron,
		Timezone: s.Timezone,
		Enabled:  s.Enabled,
		Plan:     plan,
	}, nil
}

// setDefaults задаёт значения по умолчанию.
// Каждый ключ должен иметь значение по умолчанию, иначе его не увидит AutomaticEnv.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("rabbitmq.url", "")

	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "json")

	v.SetDefault("engine.confidence_threshold", 0.5)
	v.SetDefault("engine.task_timeout", 30*time.Second)
	v.SetDefault("engine.strict", false)

	v.SetDefault("universe.seed", 0)
	v.SetDefault("universe.assets_per_sector", 4000)
	v.SetDefault("universe.portfolio_size", 100)
	v.SetDefault("universe.portfolios", []string{"P1", "P2", "P100"})

	v.SetDefault("worker.poll_interval", 10*time.Second)
	v.SetDefault("worker.batch_size", 50)
	v.SetDefault("worker.concurrency", 4)

	v.SetDefault("scheduler.interval", 30*time.Second)

	v.SetDefault("schedules", []any{})
}

// bindLegacyEnv связывает ключи с переменными окружения прежних сервисов.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.port":  {EnvPrefix + "_SERVER_PORT", "API_PORT"},
		"database.url": {EnvPrefix + "_DATABASE_URL", "DB_URL"},
		"rabbitmq.url": {EnvPrefix + "_RABBITMQ_URL", "RABBITMQ_URL"},
		"log.level":    {EnvPrefix + "_LOG_LEVEL", "LOG_LEVEL"},
		"log.format":   {EnvPrefix + "_LOG_FORMAT", "LOG_FORMAT"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Load загружает конфигурацию.
//
// path - явный путь к файлу; если пусто, ищется portfolium.yaml,
// а его отсутствие не считается ошибкой.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("portfolium")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/portfolium")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет конфигурацию и возвращает все найденные проблемы сразу.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		add("log.format must be json or text, got %q", c.Log.Format)
	}
	if c.Engine.ConfidenceThreshold < 0 || c.Engine.ConfidenceThreshold > 1 {
		add("engine.confidence_threshold must be in [0, 1], got %v", c.Engine.ConfidenceThreshold)
	}
	if c.Engine.TaskTimeout < 0 {
		add("engine.task_timeout must not be negative, got %s", c.Engine.TaskTimeout)
	}
	if c.Universe.AssetsPerSector <= 0 {
		add("universe.assets_per_sector must be positive, got %d", c.Universe.AssetsPerSector)
	}
	if c.Universe.PortfolioSize <= 0 {
		add("universe.portfolio_size must be positive, got %d", c.Universe.PortfolioSize)
	}

	names := make(map[string]bool, len(c.Schedules))
	for i, s := range c.Schedules {
		if s.Name == "" {
			add("schedules[%d]: name is required", i)
		} else if names[s.Name] {
			add("schedules[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = true

		if err := scheduler.ValidateCronExpr(s.Cron); err != nil {
			add("schedules[%d] %s: %v", i, s.Name, err)
		}
		if s.Timezone != "" {
			if _, err := time.LoadLocation(s.Timezone); err != nil {
				add("schedules[%d] %s: invalid timezone %q", i, s.Name, s.Timezone)
			}
		}
		if _, err := s.ParsePlan(); err != nil {
			add("schedules[%d]: %v", i, err)
		}
	}

	return errors.Join(errs...)
}
