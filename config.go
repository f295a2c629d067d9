package obs

import "github.com/eli0shin/obs-playground/internal/config"

// Config holds the complete logging and telemetry configuration.
type Config = config.Config

// ConsoleConfig configures console (stdout/stderr) output.
type ConsoleConfig = config.ConsoleConfig

// FileConfig configures file output with rotation.
type FileConfig = config.FileConfig

// OTELConfig configures the bridge from the logger into OTel log records.
type OTELConfig = config.OTELConfig

// Exporters lists the telemetry backends.
type Exporters = config.Exporters

// VendorConfig configures the vendor-native tracer mode.
type VendorConfig = config.VendorConfig

// BatchConfig bounds export payload sizes.
type BatchConfig = config.BatchConfig

// Default returns a production configuration: info level, JSON console
// output, no file, no backends.
func Default() Config {
	return config.Default()
}

// Development returns a configuration for local development: debug level,
// pretty console output and caller information.
func Development() Config {
	return config.Development()
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig() (Config, error) {
	return config.Load()
}
