package am

import "testing"

func validConfig() *Config {
	return &Config{
		App: AppConfig{APIID: 12345, APIHash: "abc"},
		Network: NetworkConfig{
			DefaultDatacenter: 2,
			ConnectTimeoutMS:  10000,
			Datacenters: []DatacenterAddress{
				{ID: 2, Address: "149.154.167.51", Port: 443},
			},
		},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateRejectsMissingAPIID(t *testing.T) {
	c := validConfig()
	c.App.APIID = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for api_id <= 0")
	}
}

func TestValidateRejectsEmptyAPIHash(t *testing.T) {
	c := validConfig()
	c.App.APIHash = ""
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for empty api_hash")
	}
}

func TestValidateRejectsZeroConnectTimeout(t *testing.T) {
	c := validConfig()
	c.Network.ConnectTimeoutMS = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for connect_timeout_ms <= 0")
	}
}

func TestValidateRejectsNoDatacenters(t *testing.T) {
	c := validConfig()
	c.Network.Datacenters = nil
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for an empty datacenter table")
	}
}

func TestValidateRejectsDefaultDatacenterNotInTable(t *testing.T) {
	c := validConfig()
	c.Network.DefaultDatacenter = 99
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error when default_datacenter has no matching entry")
	}
}

func TestValidateRejectsInvalidPort(t *testing.T) {
	c := validConfig()
	c.Network.Datacenters[0].Port = 70000
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for an out-of-range port")
	}
}

func TestValidateRequiresProxyAddressWhenEnabled(t *testing.T) {
	c := validConfig()
	c.Proxy.Enabled = true
	c.Proxy.Port = 443
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for an enabled proxy with no address")
	}
}
