package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/crateflow/internal/invoice/format"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	// LateDeliveryInclude links every delivery still unbilled when the draft is finalized.
	LateDeliveryInclude = "include"
	// LateDeliveryDefer links only deliveries captured before generation started.
	LateDeliveryDefer = "defer"
)

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

type BillingConfig struct {
	DueDays               int    `mapstructure:"dueDays"`
	LateDeliveryPolicy    string `mapstructure:"lateDeliveryPolicy"`
	InvoiceNumberTemplate string `mapstructure:"invoiceNumberTemplate"`
}

type LockingConfig struct {
	Backend     string        `mapstructure:"backend"`
	TTL         time.Duration `mapstructure:"ttl"`
	WaitTimeout time.Duration `mapstructure:"waitTimeout"`
}

// Policy is the hot-reloadable part of the configuration.
type Policy struct {
	Billing BillingConfig `mapstructure:"billing"`
	Locking LockingConfig `mapstructure:"locking"`
}

func DefaultPolicy() Policy {
	return Policy{
		Billing: BillingConfig{
			DueDays:               7,
			LateDeliveryPolicy:    LateDeliveryInclude,
			InvoiceNumberTemplate: format.DefaultInvoiceNumberTemplate,
		},
		Locking: LockingConfig{
			Backend:     LockBackendMemory,
			TTL:         30 * time.Second,
			WaitTimeout: 5 * time.Second,
		},
	}
}

// DueAfter is the payment window granted on confirmation.
func (b BillingConfig) DueAfter() time.Duration {
	return time.Duration(b.DueDays) * 24 * time.Hour
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

// NewPolicyHolder loads billing.yml from the standard locations.
func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	return LoadPolicy(log, "/etc/crateflow", ".")
}

// LoadPolicy reads billing.yml from the first matching path and watches it for changes.
// A missing file yields the defaults.
func LoadPolicy(log *zap.Logger, paths ...string) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("billing.config")

	v := viper.New()
	v.SetConfigName("billing")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("CRATEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("billing.dueDays", defaults.Billing.DueDays)
	v.SetDefault("billing.lateDeliveryPolicy", defaults.Billing.LateDeliveryPolicy)
	v.SetDefault("billing.invoiceNumberTemplate", defaults.Billing.InvoiceNumberTemplate)
	v.SetDefault("locking.backend", defaults.Locking.Backend)
	v.SetDefault("locking.ttl", defaults.Locking.TTL)
	v.SetDefault("locking.waitTimeout", defaults.Locking.WaitTimeout)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePolicy(v)
		if err != nil {
			log.Warn("invalid billing config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

func (h *PolicyHolder) Billing() BillingConfig {
	return h.Get().Billing
}

func (h *PolicyHolder) Locking() LockingConfig {
	return h.Get().Locking
}

func decodePolicy(v *viper.Viper) (Policy, error) {
	var cfg Policy
	if err := v.Unmarshal(&cfg); err != nil {
		return Policy{}, err
	}
	cfg.Billing.LateDeliveryPolicy = strings.ToLower(strings.TrimSpace(cfg.Billing.LateDeliveryPolicy))
	cfg.Locking.Backend = strings.ToLower(strings.TrimSpace(cfg.Locking.Backend))
	if err := ValidatePolicy(cfg); err != nil {
		return Policy{}, err
	}
	return cfg, nil
}

func ValidatePolicy(cfg Policy) error {
	if cfg.Billing.DueDays <= 0 {
		return errors.New("billing.dueDays must be positive")
	}
	switch cfg.Billing.LateDeliveryPolicy {
	case LateDeliveryInclude, LateDeliveryDefer:
	default:
		return fmt.Errorf("billing.lateDeliveryPolicy %q is not supported", cfg.Billing.LateDeliveryPolicy)
	}
	if err := format.ValidateTemplate(cfg.Billing.InvoiceNumberTemplate); err != nil {
		return fmt.Errorf("billing.invoiceNumberTemplate: %w", err)
	}
	switch cfg.Locking.Backend {
	case LockBackendMemory, LockBackendRedis:
	default:
		return fmt.Errorf("locking.backend %q is not supported", cfg.Locking.Backend)
	}
	if cfg.Locking.TTL <= 0 {
		return errors.New("locking.ttl must be positive")
	}
	if cfg.Locking.WaitTimeout <= 0 {
		return errors.New("locking.waitTimeout must be positive")
	}
	return nil
}
