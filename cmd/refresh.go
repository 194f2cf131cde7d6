package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Downloads and ingests the static schedule feed",
	Args:  cobra.NoArgs,
	RunE:  refresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func refresh(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}

	if err := app.manager.Refresh(context.Background()); err != nil {
		return err
	}

	if err := seedPriors(app); err != nil {
		return err
	}

	fmt.Println("feed refreshed")
	return nil
}
