package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/otus-sbus/sbus/internal/command"
)

var (
	routeMsgID    uint32
	routePipeName string
)

func addRouteFlags(c *cobra.Command) {
	c.Flags().Uint32Var(&routeMsgID, "msg-id", 0, "MsgId of the route to toggle")
	c.Flags().StringVar(&routePipeName, "pipe-name", "", "name of the destination pipe")
	c.MarkFlagRequired("msg-id")
	c.MarkFlagRequired("pipe-name")
}

var enableRouteCmd = &cobra.Command{
	Use:   "enable-route",
	Short: "Re-activate a disabled destination without resubscribing",
	Run: func(cmd *cobra.Command, args []string) {
		client := command.NewUDSClient(socketPath, 10*time.Second)
		resp, err := client.EnableRoute(context.Background(), routeMsgID, routePipeName)
		if err != nil {
			exitWithError("enable_route failed", err)
		}
		printResponse(resp)
	},
}

var disableRouteCmd = &cobra.Command{
	Use:   "disable-route",
	Short: "Suspend delivery to a destination without unsubscribing",
	Run: func(cmd *cobra.Command, args []string) {
		client := command.NewUDSClient(socketPath, 10*time.Second)
		resp, err := client.DisableRoute(context.Background(), routeMsgID, routePipeName)
		if err != nil {
			exitWithError("disable_route failed", err)
		}
		printResponse(resp)
	},
}

func init() {
	addRouteFlags(enableRouteCmd)
	addRouteFlags(disableRouteCmd)
}
