package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	am "github.com/teranos/mtcore/config"
	"github.com/teranos/mtcore/connection"
	"github.com/teranos/mtcore/datacenter"
	"github.com/teranos/mtcore/engine"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Dump a diagnostic snapshot of a freshly built instance",
	Long: `inspect builds a Coordinator from the bootstrap config (with no
live connections) and yaml-dumps its datacenter table and request
registry counters. Useful for eyeballing the config cascade's effect on
datacenter addresses without needing a live network.`,
	RunE: runInspect,
}

type inspectSnapshot struct {
	CurrentDatacenter int32                    `yaml:"current_datacenter"`
	Datacenters       []inspectDatacenter      `yaml:"datacenters"`
	RequestRegistry   inspectRequestRegistry   `yaml:"request_registry"`
}

type inspectDatacenter struct {
	ID       int32  `yaml:"id"`
	Address  string `yaml:"address"`
	HasKey   bool   `yaml:"has_auth_key"`
	SaltPool int    `yaml:"salt_pool_size"`
}

type inspectRequestRegistry struct {
	Queued  int `yaml:"queued"`
	Running int `yaml:"running"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	coord := engine.New(quietDelegate{})
	for _, d := range cfg.Network.Datacenters {
		addr := datacenter.Address{Host: d.Address, Port: d.Port, IPv6: d.IPv6, Media: d.Media}
		coord.AddDatacenter(datacenter.New(d.ID, []datacenter.Address{addr}))
	}

	snap := inspectSnapshot{
		CurrentDatacenter: coord.CurrentDatacenter().ID,
		RequestRegistry: inspectRequestRegistry{
			Queued:  len(coord.Registry.Queued()),
			Running: len(coord.Registry.Running()),
		},
	}

	for _, d := range cfg.Network.Datacenters {
		dc := coord.Datacenter(d.ID)
		snap.Datacenters = append(snap.Datacenters, inspectDatacenter{
			ID:       d.ID,
			Address:  fmt.Sprintf("%s:%d", d.Address, d.Port),
			HasKey:   dc.HasAuthKey(connection.Generic, true),
			SaltPool: dc.Salts().Len(),
		})
	}

	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	fmt.Print(string(data))
	return nil
}
