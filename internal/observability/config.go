package observability

import (
	"strings"

	"github.com/smallbiznis/backoffice/internal/config"
)

// Config is the telemetry view of the application config shared by the
// logger, tracer and meter providers.
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

func FromAppConfig(cfg config.Config) Config {
	tel := cfg.Telemetry
	out := Config{
		ServiceName:          strings.TrimSpace(cfg.AppName),
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             tel.LogLevel,
		LogFormat:            tel.LogFormat,
		OtelEnabled:          tel.OTLPEnabled && tel.OTLPEndpoint != "",
		OtelExporterEndpoint: tel.OTLPEndpoint,
		OtelExporterProtocol: tel.OTLPProtocol,
		OtelSamplingRatio:    tel.SamplingRatio,
	}
	if out.ServiceName == "" {
		out.ServiceName = "backoffice"
	}
	if out.LogLevel == "" {
		out.LogLevel = "info"
	}
	if out.OtelSamplingRatio <= 0 || out.OtelSamplingRatio > 1 {
		out.OtelSamplingRatio = 1
	}
	return out
}

// Debug turns on stack traces for error logs and gin debug mode.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
