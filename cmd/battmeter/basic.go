package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/battmeter/battmeter/pkg/render"
	"github.com/battmeter/battmeter/pkg/version"
	"github.com/battmeter/battmeter/pkg/widget"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewPlaceCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "place [name]",
		Short:   "Place a new battery widget",
		GroupID: gBasic,
		Long: `Place a new battery widget.

The daemon assigns the widget an id and draws it right away. A widget that has
never seen a battery reading shows as loading until the next sample.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := apiClient.PlaceWidget(args[0])
			if err != nil {
				return fmt.Errorf("failed to place widget: %w", err)
			}

			logrus.WithField("widget", info.ID).Infof("placed widget %q", info.Name)
			fmt.Fprintln(cmd.OutOrStdout(), info.ID)
			return nil
		},
	}
}

func NewRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove [id]",
		Short:   "Remove a widget and forget its state",
		GroupID: gBasic,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id := widget.ID(args[0])
			if err := apiClient.RemoveWidget(id); err != nil {
				return fmt.Errorf("failed to remove widget: %w", err)
			}

			logrus.Infof("successfully removed widget %s", id)
			return nil
		},
	}
}

func NewBatteryCommand() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:     "battery [level] [scale]",
		Short:   "Report a battery status change",
		GroupID: gTriggers,
		Long: `Report a battery status change to the daemon.

The percentage is level*100/scale. A scale of 0 or less is not a usable
reading and leaves every widget untouched.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseIntArg(args[0], "level")
			if err != nil {
				return err
			}
			scale, err := parseIntArg(args[1], "scale")
			if err != nil {
				return err
			}

			resp, err := apiClient.SetBattery(level, scale, wait)
			if err != nil {
				return fmt.Errorf("failed to report battery: %w", err)
			}

			if !resp.Accepted {
				logrus.Warnf("daemon responded: %s", resp.Message)
				return nil
			}
			logrus.Infof("daemon responded: %s", resp.Message)
			p := resp.Percent
			cmd.Println(render.Text(render.Build(widget.State{Percent: &p})))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", true, "wait until every widget has been updated")

	return cmd
}
