package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// App identity defaults (deliberately invalid placeholders — every
	// deployment must supply its own api_id/api_hash)
	v.SetDefault("app.api_id", 0)
	v.SetDefault("app.api_hash", "")
	v.SetDefault("app.app_version", "1.0.0")
	v.SetDefault("app.lang_code", "en")
	v.SetDefault("app.lang_pack", "")
	v.SetDefault("app.system_lang_code", "en")

	// Device defaults
	v.SetDefault("device.model", "mtcore")
	v.SetDefault("device.system_version", "unknown")

	// Network defaults
	v.SetDefault("network.test_backend", false)
	v.SetDefault("network.default_datacenter", int32(2))
	v.SetDefault("network.connect_timeout_ms", 10000)
	v.SetDefault("network.datacenters", defaultProductionDatacenters())

	// Proxy defaults (disabled)
	v.SetDefault("proxy.enabled", false)

	// Logging defaults
	v.SetDefault("logging.json_output", false)
	v.SetDefault("logging.theme", "everforest")
}

// defaultProductionDatacenters returns the well-known production
// datacenter address table used when no network.datacenters override is
// configured.
func defaultProductionDatacenters() []map[string]interface{} {
	return []map[string]interface{}{
		{"id": 1, "address": "149.154.175.50", "port": 443},
		{"id": 2, "address": "149.154.167.51", "port": 443},
		{"id": 3, "address": "149.154.175.100", "port": 443},
		{"id": 4, "address": "149.154.167.91", "port": 443},
		{"id": 5, "address": "91.108.56.130", "port": 443},
	}
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("app.api_hash", "MTCORE_APP_API_HASH")
	v.BindEnv("proxy.secret", "MTCORE_PROXY_SECRET")
	v.BindEnv("proxy.password", "MTCORE_PROXY_PASSWORD")
}

// String returns a string representation of the config, for logs and
// diagnostics. Never includes api_hash or proxy credentials.
func (c *Config) String() string {
	return fmt.Sprintf("Config{APIID: %d, DefaultDC: %d, TestBackend: %t, Proxy: %t}",
		c.App.APIID, c.Network.DefaultDatacenter, c.Network.TestBackend, c.Proxy.Enabled)
}
