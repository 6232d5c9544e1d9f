package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// IssuancePolicy holds the tunables of callback verification and voucher
// issuance. It can be changed at runtime through issuance.yml.
type IssuancePolicy struct {
	ReplayWindowSeconds int           `mapstructure:"replayWindowSeconds"`
	AmountTolerance     string        `mapstructure:"amountTolerance"`
	AcceptedStatuses    []string      `mapstructure:"acceptedStatuses"`
	LockTimeout         time.Duration `mapstructure:"lockTimeout"`
	StatementTimeout    time.Duration `mapstructure:"statementTimeout"`
	TxTimeout           time.Duration `mapstructure:"txTimeout"`
	MaxAttempts         int           `mapstructure:"maxAttempts"`
}

func DefaultIssuancePolicy() IssuancePolicy {
	return IssuancePolicy{
		ReplayWindowSeconds: 300,
		AmountTolerance:     "0.01",
		AcceptedStatuses:    []string{"completed", "paid", "authorized", "succeeded", "success"},
		LockTimeout:         3 * time.Second,
		StatementTimeout:    20 * time.Second,
		TxTimeout:           20 * time.Second,
		MaxAttempts:         3,
	}
}

// Tolerance returns the parsed amount tolerance. Invalid values are rejected at
// load time, so the fallback only guards zero-value policies.
func (p IssuancePolicy) Tolerance() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(p.AmountTolerance))
	if err != nil {
		return decimal.RequireFromString("0.01")
	}
	return d
}

// AcceptsStatus reports whether a provider payment status confirms the payment.
func (p IssuancePolicy) AcceptsStatus(status string) bool {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return false
	}
	for _, accepted := range p.AcceptedStatuses {
		if strings.ToLower(strings.TrimSpace(accepted)) == status {
			return true
		}
	}
	return false
}

func (p IssuancePolicy) ReplayWindow() time.Duration {
	return time.Duration(p.ReplayWindowSeconds) * time.Second
}

type IssuancePolicyHolder struct {
	current atomic.Value // holds IssuancePolicy
}

// NewStaticIssuancePolicy wraps a fixed policy without file watching.
func NewStaticIssuancePolicy(policy IssuancePolicy) *IssuancePolicyHolder {
	holder := &IssuancePolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewIssuancePolicyHolder(log *zap.Logger) (*IssuancePolicyHolder, error) {
	log = log.Named("config.issuance")

	v := viper.New()

	v.SetConfigName("issuance")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/vouchr/config")
	v.AddConfigPath("/etc/vouchr")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VOUCHR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultIssuancePolicy()
	v.SetDefault("issuance.replayWindowSeconds", defaults.ReplayWindowSeconds)
	v.SetDefault("issuance.amountTolerance", defaults.AmountTolerance)
	v.SetDefault("issuance.acceptedStatuses", defaults.AcceptedStatuses)
	v.SetDefault("issuance.lockTimeout", defaults.LockTimeout)
	v.SetDefault("issuance.statementTimeout", defaults.StatementTimeout)
	v.SetDefault("issuance.txTimeout", defaults.TxTimeout)
	v.SetDefault("issuance.maxAttempts", defaults.MaxAttempts)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var policy IssuancePolicy
	if err := v.UnmarshalKey("issuance", &policy); err != nil {
		return nil, err
	}
	if err := ValidateIssuancePolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticIssuancePolicy(policy)
	if !fileLoaded {
		log.Info("issuance policy file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated IssuancePolicy
		if err := v.UnmarshalKey("issuance", &updated); err != nil {
			log.Warn("issuance policy reload failed", zap.Error(err))
			return
		}
		if err := ValidateIssuancePolicy(updated); err != nil {
			log.Warn("invalid issuance policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("issuance policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *IssuancePolicyHolder) Get() IssuancePolicy {
	return h.current.Load().(IssuancePolicy)
}

func ValidateIssuancePolicy(p IssuancePolicy) error {
	if p.ReplayWindowSeconds <= 0 {
		return errors.New("issuance.replayWindowSeconds must be positive")
	}
	tolerance, err := decimal.NewFromString(strings.TrimSpace(p.AmountTolerance))
	if err != nil {
		return fmt.Errorf("issuance.amountTolerance: %w", err)
	}
	if tolerance.IsNegative() {
		return errors.New("issuance.amountTolerance cannot be negative")
	}
	if len(p.AcceptedStatuses) == 0 {
		return errors.New("issuance.acceptedStatuses cannot be empty")
	}
	if p.MaxAttempts <= 0 {
		return errors.New("issuance.maxAttempts must be positive")
	}
	if p.TxTimeout <= 0 {
		return errors.New("issuance.txTimeout must be positive")
	}
	return nil
}
