package config

import (
	"errors"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlatformConfig carries the commercial defaults applied when merchants are
// approved or subscriptions reactivated.
type PlatformConfig struct {
	DefaultTrialPeriodDays    int
	DefaultTransactionFeeRate float64
	EnforceHierarchyCeiling   bool
}

func DefaultPlatformConfig() PlatformConfig {
	return PlatformConfig{
		DefaultTrialPeriodDays:    30,
		DefaultTransactionFeeRate: 0.025,
		EnforceHierarchyCeiling:   false,
	}
}

const (
	keyTrialPeriodDays    = "platform.defaultTrialPeriodDays"
	keyTransactionFeeRate = "platform.defaultTransactionFeeRate"
	keyHierarchyCeiling   = "platform.enforceHierarchyCeiling"
)

type PlatformConfigHolder struct {
	current atomic.Value // holds PlatformConfig
}

// NewPlatformConfigHolder reads platform.yml and keeps it hot-reloaded.
// A missing file falls back to DefaultPlatformConfig.
func NewPlatformConfigHolder(log *zap.Logger) (*PlatformConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("platform-config")

	v := viper.New()
	v.SetConfigName("platform")
	v.SetConfigType("yml")
	if dir := strings.TrimSpace(os.Getenv("BACKOFFICE_CONFIG_DIR")); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("/etc/backoffice")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BACKOFFICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPlatformConfig()
	v.SetDefault(keyTrialPeriodDays, defaults.DefaultTrialPeriodDays)
	v.SetDefault(keyTransactionFeeRate, defaults.DefaultTransactionFeeRate)
	v.SetDefault(keyHierarchyCeiling, defaults.EnforceHierarchyCeiling)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg := readPlatformConfig(v)
	if err := ValidatePlatformConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPlatformConfig(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := readPlatformConfig(v)
		if err := ValidatePlatformConfig(updated); err != nil {
			log.Warn("invalid platform config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("platform config reloaded",
			zap.String("file", e.Name),
			zap.Int("default_trial_period_days", updated.DefaultTrialPeriodDays),
			zap.Float64("default_transaction_fee_rate", updated.DefaultTransactionFeeRate),
			zap.Bool("enforce_hierarchy_ceiling", updated.EnforceHierarchyCeiling),
		)
	})

	return holder, nil
}

// NewStaticPlatformConfig returns a holder that never reloads.
func NewStaticPlatformConfig(cfg PlatformConfig) *PlatformConfigHolder {
	holder := &PlatformConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PlatformConfigHolder) Get() PlatformConfig {
	return h.current.Load().(PlatformConfig)
}

func readPlatformConfig(v *viper.Viper) PlatformConfig {
	return PlatformConfig{
		DefaultTrialPeriodDays:    v.GetInt(keyTrialPeriodDays),
		DefaultTransactionFeeRate: v.GetFloat64(keyTransactionFeeRate),
		EnforceHierarchyCeiling:   v.GetBool(keyHierarchyCeiling),
	}
}

func ValidatePlatformConfig(cfg PlatformConfig) error {
	if cfg.DefaultTrialPeriodDays <= 0 {
		return errors.New("platform.defaultTrialPeriodDays must be positive")
	}
	if cfg.DefaultTransactionFeeRate < 0 || cfg.DefaultTransactionFeeRate >= 1 {
		return errors.New("platform.defaultTransactionFeeRate must be within [0, 1)")
	}
	return nil
}
