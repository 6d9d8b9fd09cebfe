package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DefaultBillingCron fires at midnight on the first day of every month.
const DefaultBillingCron = "0 0 0 1 * ?"

type BillingConfig struct {
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Refire   RefireConfig   `mapstructure:"refire"`
	Lock     LockConfig     `mapstructure:"lock"`
	Charge   ChargeConfig   `mapstructure:"charge"`
}

type ScheduleConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Cron     string `mapstructure:"cron"`
	Timezone string `mapstructure:"timezone"`
}

type RefireConfig struct {
	MaxAttempts int           `mapstructure:"maxAttempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

type LockConfig struct {
	Key           string        `mapstructure:"key"`
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retryInterval"`
}

type ChargeConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Schedule: ScheduleConfig{
			Enabled:  false,
			Cron:     DefaultBillingCron,
			Timezone: "UTC",
		},
		Refire: RefireConfig{
			MaxAttempts: 3,
			Delay:       0,
		},
		Lock: LockConfig{
			Key:           "antaeus:billing:pass",
			TTL:           30 * time.Minute,
			RetryInterval: 500 * time.Millisecond,
		},
		Charge: ChargeConfig{
			Timeout: 10 * time.Second,
		},
	}
}

// Location resolves the configured schedule timezone, falling back to UTC.
func (c BillingConfig) Location() *time.Location {
	name := strings.TrimSpace(c.Schedule.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BillingConfigListener receives the previous and the reloaded billing config.
type BillingConfigListener func(previous, current BillingConfig)

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig

	mu        sync.Mutex
	listeners []BillingConfigListener
}

// NewStaticBillingConfigHolder wraps a fixed config without file watching.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(cfg Config) (*BillingConfigHolder, error) {
	v := viper.New()

	if cfg.BillingConfigPath != "" {
		v.SetConfigFile(cfg.BillingConfigPath)
	} else {
		v.SetConfigName("billing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/antaeus")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ANTAEUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setBillingDefaults(v, DefaultBillingConfig())

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	loaded, err := unmarshalBillingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(loaded)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalBillingConfig(v)
		if err != nil {
			zap.L().Warn("billing.config.reload_failed",
				zap.String("file", e.Name),
				zap.Error(err),
			)
			return
		}
		holder.apply(updated)
		zap.L().Info("billing.config.reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

// OnChange registers a listener invoked after every successful reload.
func (h *BillingConfigHolder) OnChange(fn BillingConfigListener) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Update validates and applies cfg as if it had been reloaded from disk.
func (h *BillingConfigHolder) Update(cfg BillingConfig) error {
	if err := validateBillingConfig(cfg); err != nil {
		return err
	}
	h.apply(cfg)
	return nil
}

func (h *BillingConfigHolder) apply(updated BillingConfig) {
	previous := h.Get()
	h.current.Store(updated)

	h.mu.Lock()
	listeners := append([]BillingConfigListener(nil), h.listeners...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(previous, updated)
	}
}

func setBillingDefaults(v *viper.Viper, defaults BillingConfig) {
	v.SetDefault("billing.schedule.enabled", defaults.Schedule.Enabled)
	v.SetDefault("billing.schedule.cron", defaults.Schedule.Cron)
	v.SetDefault("billing.schedule.timezone", defaults.Schedule.Timezone)
	v.SetDefault("billing.refire.maxAttempts", defaults.Refire.MaxAttempts)
	v.SetDefault("billing.refire.delay", defaults.Refire.Delay)
	v.SetDefault("billing.lock.key", defaults.Lock.Key)
	v.SetDefault("billing.lock.ttl", defaults.Lock.TTL)
	v.SetDefault("billing.lock.retryInterval", defaults.Lock.RetryInterval)
	v.SetDefault("billing.charge.timeout", defaults.Charge.Timeout)
}

func unmarshalBillingConfig(v *viper.Viper) (BillingConfig, error) {
	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return BillingConfig{}, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

func validateBillingConfig(cfg BillingConfig) error {
	if strings.TrimSpace(cfg.Schedule.Cron) == "" {
		return errors.New("billing.schedule.cron cannot be empty")
	}
	if cfg.Refire.MaxAttempts < 0 {
		return errors.New("billing.refire.maxAttempts cannot be negative")
	}
	if cfg.Refire.Delay < 0 {
		return errors.New("billing.refire.delay cannot be negative")
	}
	if cfg.Lock.TTL <= 0 {
		return errors.New("billing.lock.ttl must be positive")
	}
	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("billing.schedule.timezone: %w", err)
		}
	}
	return nil
}
