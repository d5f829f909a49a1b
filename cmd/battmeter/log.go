package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewLogCommand() *cobra.Command {
	var lines int

	cmd := &cobra.Command{
		Use:     "log",
		Short:   "Print the daemon's update and render log",
		GroupID: gAdvanced,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if lines < 0 {
				return fmt.Errorf("invalid number of lines: %d", lines)
			}

			ret, err := apiClient.GetLog(lines)
			if err != nil {
				return err
			}
			for _, l := range ret {
				cmd.Println(l)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "number of lines to print, 0 prints the whole log")

	return cmd
}
