package main

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	am "github.com/teranos/mtcore/config"
	"github.com/teranos/mtcore/connection"
	"github.com/teranos/mtcore/datacenter"
	"github.com/teranos/mtcore/engine"
	"github.com/teranos/mtcore/wire"
)

var statusInterval time.Duration

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Live dashboard of datacenters, connections, and the request registry",
	Long: `status renders a live-refreshing table of every configured
datacenter, its handshake/auth-key state, and the coordinator's queued
and running request counts. It builds its own Coordinator from the
bootstrap config; it does not attach to another process's engine.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().DurationVar(&statusInterval, "interval", time.Second, "refresh interval")
}

type quietDelegate struct{}

func (quietDelegate) OnUpdate(obj wire.Object)                                          {}
func (quietDelegate) OnSessionCreated(dc int32)                                         {}
func (quietDelegate) OnConnectionStateChanged(dc int32, class connection.Class, s int32) {}
func (quietDelegate) OnUnparsedMessageReceived(obj wire.Object)                         {}
func (quietDelegate) OnLogout()                                                         {}
func (quietDelegate) OnProxyError(err error)                                            {}
func (quietDelegate) OnInternalPushReceived(obj wire.Object)                            {}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	coord := engine.New(quietDelegate{})
	for _, d := range cfg.Network.Datacenters {
		addr := datacenter.Address{Host: d.Address, Port: d.Port, IPv6: d.IPv6, Media: d.Media}
		coord.AddDatacenter(datacenter.New(d.ID, []datacenter.Address{addr}))
	}

	area, err := pterm.DefaultArea.WithCenter().Start()
	if err != nil {
		return fmt.Errorf("failed to start live area: %w", err)
	}
	defer area.Stop()

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for range ticker.C {
		area.Update(renderStatus(coord, cfg))
	}
	return nil
}

func renderStatus(coord *engine.Coordinator, cfg *am.Config) string {
	rows := pterm.TableData{{"DC", "Address", "Has Key", "Running", "Queued"}}

	for _, d := range cfg.Network.Datacenters {
		dc := coord.Datacenter(d.ID)
		if dc == nil {
			continue
		}
		running := coord.Registry.RunningCount(d.ID, connection.Generic)
		rows = append(rows, []string{
			fmt.Sprintf("%d", d.ID),
			fmt.Sprintf("%s:%d", d.Address, d.Port),
			fmt.Sprintf("%v", dc.HasAuthKey(connection.Generic, true)),
			fmt.Sprintf("%d", running),
			fmt.Sprintf("%d", len(coord.Registry.Queued())),
		})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return fmt.Sprintf("render error: %v", err)
	}
	return table
}
