package engine

type ApplicationConfig struct {
	// Path of the TOML configuration file. Defaults are used when empty.
	ConfigPath string
	// The application name used in windowing. Overrides window.title when set.
	Name string
	// Overrides log.level when set.
	LogLevel string
}
