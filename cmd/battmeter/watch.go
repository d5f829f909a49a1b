package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/battmeter/battmeter/pkg/events"
	"github.com/battmeter/battmeter/pkg/render"
)

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Short:   "Print widgets as the daemon redraws them",
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Fail early with a proper error if the daemon is unreachable.
			if _, err := apiClient.GetVersion(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			for ev := range apiClient.SubscribeEvents(ctx) {
				logrus.WithFields(logrus.Fields{
					"event": ev.Name,
					"data":  string(ev.Data),
				}).Debug("new event")

				ts := time.Now().Format(time.TimeOnly)
				switch ev.Name {
				case events.WidgetRender:
					payload, err := events.DecodeAs[render.Event](ev)
					if err != nil {
						logrus.WithError(err).Error("failed to decode widget.render event")
						continue
					}
					cmd.Printf("%s %s %s\n", ts, bold("%s", payload.Widget), render.Text(payload.View))
				case events.WidgetPlaced:
					payload, err := events.DecodeAs[events.WidgetEvent](ev)
					if err != nil {
						logrus.WithError(err).Error("failed to decode widget.placed event")
						continue
					}
					cmd.Printf("%s %s %s\n", ts, bold("%s", payload.Widget), color.GreenString("placed (%s)", payload.Name))
				case events.WidgetRemoved:
					payload, err := events.DecodeAs[events.WidgetEvent](ev)
					if err != nil {
						logrus.WithError(err).Error("failed to decode widget.removed event")
						continue
					}
					cmd.Printf("%s %s %s\n", ts, bold("%s", payload.Widget), color.RedString("removed"))
				}
			}

			if ctx.Err() == nil {
				logrus.Warn("daemon closed the event stream")
			}
			return nil
		},
	}
}
