package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	planner "github.com/dcmshi/transit-planner"
	"github.com/dcmshi/transit-planner/reliability"
	"github.com/dcmshi/transit-planner/storage"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seeds reliability priors from the active schedule",
	Long: "Replays the last two weeks of the active schedule and writes " +
		"baseline reliability records for every (route, stop, bucket). " +
		"Run once on a fresh deployment; live observations refine the " +
		"records from there.",
	Args: cobra.NoArgs,
	RunE: seed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func seed(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}

	err = app.manager.Activate(time.Now())
	if errors.Is(err, planner.ErrNoActiveFeed) {
		err = app.manager.Refresh(context.Background())
	}
	if err != nil {
		return err
	}

	if err := seedPriors(app); err != nil {
		return err
	}

	fmt.Println("reliability priors seeded")
	return nil
}

// seedPriors replays the last two weeks of the freshest stored feed
// into synthetic reliability records.
func seedPriors(app *app) error {
	feeds, err := app.storage.ListFeeds(storage.ListFeedsFilter{URL: app.cfg.Feeds.StaticURL})
	if err != nil {
		return fmt.Errorf("listing feeds: %w", err)
	}
	if len(feeds) == 0 {
		return planner.ErrNoActiveFeed
	}

	reader, err := app.storage.GetReader(feeds[len(feeds)-1].Hash)
	if err != nil {
		return fmt.Errorf("getting reader: %w", err)
	}

	start := time.Now().AddDate(0, 0, -reliability.SeedWindowDays)
	return reliability.Seed(app.storage, reader, start)
}
