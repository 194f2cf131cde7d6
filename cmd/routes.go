package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	planner "github.com/dcmshi/transit-planner"
	"github.com/dcmshi/transit-planner/model"
)

var routesCmd = &cobra.Command{
	Use:   "routes <origin_stop_id> <destination_stop_id>",
	Short: "Finds routes between two stops, ranked by travel time, scored by risk",
	Args:  cobra.ExactArgs(2),
	RunE:  routes,
}

var (
	date         string
	notBefore    string
	maxRoutes    int
	maxTransfers int
)

func init() {
	routesCmd.Flags().StringVarP(&date, "date", "d", "", "Service date (YYYYMMDD, default today)")
	routesCmd.Flags().StringVarP(&notBefore, "not-before", "t", "", "Earliest departure (HH:MM:SS, default now)")
	routesCmd.Flags().IntVarP(&maxRoutes, "max-routes", "n", 0, "Number of routes to return")
	routesCmd.Flags().IntVarP(&maxTransfers, "max-transfers", "x", 0, "Maximum transfers per route")
	rootCmd.AddCommand(routesCmd)
}

func routes(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}

	// Activate a stored feed, downloading one if storage is empty.
	err = app.manager.Activate(time.Now())
	if errors.Is(err, planner.ErrNoActiveFeed) {
		err = app.manager.Refresh(context.Background())
	}
	if err != nil {
		return err
	}

	now := time.Now()
	if date == "" {
		date = now.Format("20060102")
	}
	if notBefore == "" {
		notBefore = now.Format("15:04:05")
	}

	found, err := app.engine.FindRoutes(planner.Query{
		Origin:       args[0],
		Destination:  args[1],
		Date:         date,
		NotBefore:    notBefore,
		MaxRoutes:    maxRoutes,
		MaxTransfers: maxTransfers,
	})
	if err != nil {
		return err
	}

	for i, route := range found {
		fmt.Printf(
			"%d) risk %.2f (%s), %d transfers, %s travel\n",
			i+1,
			route.RiskScore,
			route.RiskLabel,
			route.Transfers,
			time.Duration(route.TotalTravelSeconds)*time.Second,
		)
		for _, leg := range route.Legs {
			printLeg(leg)
		}
	}

	return nil
}

func printLeg(leg model.Leg) {
	dep := model.SecondsToHHMMSS(leg.DepartureSec)
	arr := model.SecondsToHHMMSS(leg.ArrivalSec)
	if leg.Kind == model.LegWalk {
		fmt.Printf(
			"   %s %s  walk %.0fm  %s -> %s\n",
			dep, arr, leg.DistanceMetres, leg.FromStopName, leg.ToStopName,
		)
		return
	}
	fmt.Printf(
		"   %s %s  route %s (trip %s)  %s -> %s\n",
		dep, arr, leg.RouteID, leg.TripID, leg.FromStopName, leg.ToStopName,
	)
}
