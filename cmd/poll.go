package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dcmshi/transit-planner/live"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Polls the realtime feeds until interrupted",
	Args:  cobra.NoArgs,
	RunE:  poll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
}

func poll(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}

	feeds := app.cfg.Feeds
	if feeds.TripUpdatesURL == "" && feeds.VehiclePositionsURL == "" && feeds.AlertsURL == "" {
		return fmt.Errorf("no realtime feed URLs configured")
	}

	poller := live.NewPoller(
		app.live,
		feeds.TripUpdatesURL,
		feeds.VehiclePositionsURL,
		feeds.AlertsURL,
		feeds.APIKey,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poller.Run(ctx, app.cfg.PollInterval())
	return nil
}
