package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newTriggerCommand(use, short, long string, fn func(wait bool) error) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Long:    long,
		GroupID: gTriggers,
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := fn(wait); err != nil {
				return fmt.Errorf("failed to %s: %w", use, err)
			}
			logrus.Infof("%s done", use)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", true, "wait until every widget has been updated")

	return cmd
}

func NewForegroundCommand() *cobra.Command {
	return newTriggerCommand("foreground",
		"Redraw every widget with its stored percentage",
		`Redraw every widget with its stored percentage.

This is what happens when a widget comes to the foreground: the last update
time is refreshed but no new battery reading is taken.`,
		func(wait bool) error { return apiClient.Foreground(wait) },
	)
}

func NewResampleCommand() *cobra.Command {
	return newTriggerCommand("resample",
		"Read the battery now and update every widget",
		`Read the battery now and update every widget.

If the battery cannot be read, nothing is written.`,
		func(wait bool) error { return apiClient.Resample(wait) },
	)
}
