package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig carries the billing policy knobs that operations tune
// without redeploying: the base/default currencies, invoice due window
// and the provisioned service validity window.
type BillingConfig struct {
	BaseCurrency    string `mapstructure:"baseCurrency"`
	DefaultCurrency string `mapstructure:"defaultCurrency"`
	InvoiceDueDays  int    `mapstructure:"invoiceDueDays"`
	ServiceDays     int    `mapstructure:"serviceDays"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		BaseCurrency:    "USD",
		DefaultCurrency: "USD",
		InvoiceDueDays:  7,
		ServiceDays:     30,
	}
}

// BillingConfigHolder exposes the current billing policy and hot-reloads
// it when the config file changes.
type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/webafza/billing")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.baseCurrency", defaults.BaseCurrency)
	v.SetDefault("billing.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("billing.invoiceDueDays", defaults.InvoiceDueDays)
	v.SetDefault("billing.serviceDays", defaults.ServiceDays)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

// NewStaticBillingConfigHolder wraps a fixed policy, used by tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validateBillingConfig(cfg BillingConfig) error {
	if strings.TrimSpace(cfg.BaseCurrency) == "" {
		return errors.New("billing.baseCurrency cannot be empty")
	}
	if strings.TrimSpace(cfg.DefaultCurrency) == "" {
		return errors.New("billing.defaultCurrency cannot be empty")
	}
	if cfg.InvoiceDueDays <= 0 {
		return errors.New("billing.invoiceDueDays must be positive")
	}
	if cfg.ServiceDays <= 0 {
		return errors.New("billing.serviceDays must be positive")
	}
	return nil
}
