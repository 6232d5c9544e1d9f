package observability

import (
	"strings"

	"github.com/smallbiznis/vouchr/internal/config"
	"github.com/spf13/viper"
)

// Config holds the logging and OpenTelemetry settings for one vouchr process.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig overlays the standard OTEL_* and LOG_* variables on the
// application config. Empty variables fall back to the defaults.
func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AllowEmptyEnv(false)
	v.AutomaticEnv()

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "vouchr"
	}
	v.SetDefault("DEPLOYMENT_ENV", cfg.Environment)
	v.SetDefault("SERVICE_VERSION", cfg.AppVersion)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_ENABLED", true)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_SAMPLING_RATIO", 0.1)

	protocol := envString(v, "OTEL_EXPORTER_OTLP_PROTOCOL")
	if traces := envString(v, "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"); traces != "" {
		protocol = traces
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          envString(v, "DEPLOYMENT_ENV"),
		Version:              envString(v, "SERVICE_VERSION"),
		LogLevel:             strings.ToLower(envString(v, "LOG_LEVEL")),
		LogFormat:            strings.ToLower(envString(v, "LOG_FORMAT")),
		OtelEnabled:          v.GetBool("OTEL_ENABLED"),
		OtelExporterEndpoint: envString(v, "OTEL_EXPORTER_OTLP_ENDPOINT"),
		OtelExporterProtocol: strings.ToLower(protocol),
		OtelSamplingRatio:    v.GetFloat64("OTEL_SAMPLING_RATIO"),
	}
}

// Debug enables verbose request logging outside production.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func envString(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}
