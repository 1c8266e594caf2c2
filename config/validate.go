package am

import "fmt"

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.App.APIID <= 0 {
		return fmt.Errorf("app.api_id must be set to a positive value")
	}
	if c.App.APIHash == "" {
		return fmt.Errorf("app.api_hash must not be empty")
	}

	if c.Network.ConnectTimeoutMS <= 0 {
		return fmt.Errorf("network.connect_timeout_ms must be > 0, got %d", c.Network.ConnectTimeoutMS)
	}
	if len(c.Network.Datacenters) == 0 {
		return fmt.Errorf("network.datacenters must list at least one bootstrap address")
	}

	foundDefault := false
	for _, dc := range c.Network.Datacenters {
		if dc.ID == c.Network.DefaultDatacenter {
			foundDefault = true
		}
		if dc.Address == "" {
			return fmt.Errorf("network.datacenters[%d] has an empty address", dc.ID)
		}
		if dc.Port <= 0 || dc.Port > 65535 {
			return fmt.Errorf("network.datacenters[%d] has invalid port %d", dc.ID, dc.Port)
		}
	}
	if !foundDefault {
		return fmt.Errorf("network.default_datacenter %d has no matching entry in network.datacenters", c.Network.DefaultDatacenter)
	}

	if c.Proxy.Enabled {
		if c.Proxy.Address == "" {
			return fmt.Errorf("proxy.address cannot be empty when proxy.enabled is true")
		}
		if c.Proxy.Port <= 0 || c.Proxy.Port > 65535 {
			return fmt.Errorf("proxy.port must be a valid port when proxy.enabled is true, got %d", c.Proxy.Port)
		}
	}

	return nil
}
