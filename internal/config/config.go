// Package config loads eks-auth-sync settings from flags, environment and an
// optional YAML file, and validates them.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g.
// EKS_AUTH_SYNC_SCAN_ROLES_PATH.
const EnvPrefix = "EKS_AUTH_SYNC"

// Config is the full runtime configuration.
type Config struct {
	Cluster string `mapstructure:"cluster" validate:"required"`

	ScanRolesPath string `mapstructure:"scan-roles-path" validate:"omitempty,startswith=/"`
	ScanUsersPath string `mapstructure:"scan-users-path" validate:"omitempty,startswith=/"`

	Update     bool `mapstructure:"update"`
	AllowEmpty bool `mapstructure:"allow-empty"`

	InCluster   bool   `mapstructure:"in-cluster"`
	AuthWithAWS bool   `mapstructure:"auth-with-aws"`
	AuthRoleARN string `mapstructure:"auth-role-arn" validate:"omitempty,startswith=arn:"`
	Region      string `mapstructure:"region-name"`
	Kubeconfig  string `mapstructure:"kubeconfig"`
	Context     string `mapstructure:"context"`

	Output string `mapstructure:"output" validate:"oneof=yaml json"`

	LogLevel  string `mapstructure:"log-level" validate:"oneof=debug info warn warning error"`
	LogFormat string `mapstructure:"log-format" validate:"oneof=text json"`

	MetricsPushgateway string `mapstructure:"metrics-pushgateway" validate:"omitempty,url"`
	MetricsJob         string `mapstructure:"metrics-job" validate:"required_with=MetricsPushgateway"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() map[string]any {
	return map[string]any{
		"output":      "yaml",
		"log-level":   "info",
		"log-format":  "text",
		"metrics-job": "eks-auth-sync",
	}
}

// Load resolves configuration with precedence flags > environment > file >
// defaults. configPath may be empty. Only flags that were explicitly set
// override the other sources.
func Load(flags *pflag.FlagSet, configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv sees it during Unmarshal.
	defaults := Defaults()
	for _, k := range keys {
		if val, ok := defaults[k]; ok {
			v.SetDefault(k, val)
			continue
		}
		v.SetDefault(k, zeroValue(k))
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
	}
}

var keys = []string{
	"cluster", "scan-roles-path", "scan-users-path", "update", "allow-empty",
	"in-cluster", "auth-with-aws", "auth-role-arn", "region-name", "kubeconfig",
	"context", "output", "log-level", "log-format", "metrics-pushgateway", "metrics-job",
}

func zeroValue(key string) any {
	switch key {
	case "update", "allow-empty", "in-cluster", "auth-with-aws":
		return false
	default:
		return ""
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
	})
	return v
}

// Validate checks cfg against its struct tags and returns a readable error
// naming every failing key.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Field(), rule))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// ConfigFileFromEnv returns the config file named by EKS_AUTH_SYNC_CONFIG.
func ConfigFileFromEnv() string {
	return os.Getenv(EnvPrefix + "_CONFIG")
}
