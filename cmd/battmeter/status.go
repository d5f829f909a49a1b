package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/battmeter/battmeter/pkg/config"
	"github.com/battmeter/battmeter/pkg/render"
	"github.com/battmeter/battmeter/pkg/types"
)

type statusData struct {
	widgets  []types.WidgetStatus
	schedule *types.ScheduleStatus
	config   *config.RawFileConfig
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	widgets, err := apiClient.ListWidgets()
	if err != nil {
		return nil, fmt.Errorf("failed to list widgets: %w", err)
	}

	schedule, err := apiClient.GetSchedule()
	if err != nil {
		return nil, fmt.Errorf("failed to get sample schedule: %w", err)
	}

	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	return &statusData{
		widgets:  widgets,
		schedule: schedule,
		config:   conf,
	}, nil
}

type statusJSON struct {
	Widgets       []types.WidgetStatus  `json:"widgets"`
	Schedule      *types.ScheduleStatus `json:"schedule"`
	Configuration *config.RawFileConfig `json:"configuration"`
}

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Show every widget and the daemon configuration",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(statusJSON{
					Widgets:       data.widgets,
					Schedule:      data.schedule,
					Configuration: data.config,
				})
			}

			conf := config.NewFileFromConfig(data.config, "")
			now := time.Now()

			cmd.Println(bold("Widgets:"))
			if len(data.widgets) == 0 {
				cmd.Println("  No widgets placed. Use 'battmeter place NAME' to add one.")
			}
			for _, w := range data.widgets {
				cmd.Printf("  %s %s\n", bold("%s", w.ID), w.Name)
				cmd.Printf("    %s", render.Text(w.View))
				if w.State.LastUpdatedMillis != nil {
					cmd.Printf("  updated %s ago", render.Age(w.State, now))
				}
				cmd.Println()
			}

			cmd.Println()

			cmd.Println(bold("Sampling:"))
			cmd.Printf("  Schedule: %s\n", bold("%s", data.schedule.Schedule))
			if data.schedule.Next != nil {
				cmd.Printf("  Next sample: %s\n", bold("%s", data.schedule.Next.Local().Format(time.DateTime)))
			}

			cmd.Println()

			cmd.Println(bold("Daemon configuration:"))
			dbPath := conf.DBPath()
			if dbPath == "" {
				dbPath = "(in memory)"
			}
			cmd.Printf("  Database: %s\n", bold("%s", dbPath))
			cmd.Printf("  Debug log: %s\n", bold("%s", conf.DebugLogPath()))
			cmd.Printf("  Update queue size: %s\n", bold("%d", conf.QueueSize()))
			cmd.Printf("  Export over D-Bus: %s\n", bool2Text(conf.ExportDBus()))
			cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(conf.AllowNonRootAccess()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")

	return cmd
}
