package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetsim/config"
	"github.com/kilianp07/fleetsim/core/fleet"
	"github.com/kilianp07/fleetsim/infra/logger"
	"github.com/kilianp07/fleetsim/infra/simagent"
)

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Fleet related commands",
}

var fleetLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the generated fleet with its spawn positions",
	RunE:  runFleetLs,
}

func init() {
	fleetCmd.AddCommand(fleetLsCmd)
	rootCmd.AddCommand(fleetCmd)
}

func runFleetLs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	tracker := fleet.NewTracker()
	simagent.GenerateFleet(simagent.GenerateConfig{
		Size:  cfg.Fleet.Size,
		Seed:  cfg.Fleet.Seed,
		AreaM: cfg.Fleet.AreaM,
	}, nil, nil, tracker, logger.NopLogger{})
	for _, st := range tracker.Snapshot() {
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t(%.0f, %.0f)\n",
			st.VehicleID, st.State, st.Location.X, st.Location.Y); err != nil {
			return err
		}
	}
	return nil
}
