package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/otus-sbus/sbus/internal/command"
)

func printResponse(resp *command.Response) {
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("command failed: %s", resp.Error.Message), nil)
	}
	out, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		exitWithError("failed to format result", err)
	}
	fmt.Println(string(out))
}

func callSimple(method string, call func(*command.UDSClient, context.Context) (*command.Response, error)) {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	resp, err := call(client, context.Background())
	if err != nil {
		exitWithError(fmt.Sprintf("%s failed", method), err)
	}
	printResponse(resp)
}

var noopCmd = &cobra.Command{
	Use:   "noop",
	Short: "Ping the daemon (increments only the command counter)",
	Run: func(cmd *cobra.Command, args []string) {
		callSimple("noop", (*command.UDSClient).Noop)
	},
}

var resetCountersCmd = &cobra.Command{
	Use:   "reset-counters",
	Short: "Zero the bus's HK counters",
	Run: func(cmd *cobra.Command, args []string) {
		callSimple("reset_counters", (*command.UDSClient).ResetCounters)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show STATS_TLM: configured limits and per-pipe queue depths",
	Run: func(cmd *cobra.Command, args []string) {
		callSimple("stats", (*command.UDSClient).Stats)
	},
}

var writeRoutingInfoCmd = &cobra.Command{
	Use:   "write-routing-info",
	Short: "Dump the routing table to the daemon's file dump directory",
	Run: func(cmd *cobra.Command, args []string) {
		callSimple("write_routing_info", (*command.UDSClient).WriteRoutingInfo)
	},
}

var writePipeInfoCmd = &cobra.Command{
	Use:   "write-pipe-info",
	Short: "Dump the pipe table to the daemon's file dump directory",
	Run: func(cmd *cobra.Command, args []string) {
		callSimple("write_pipe_info", (*command.UDSClient).WritePipeInfo)
	},
}

var writeMapInfoCmd = &cobra.Command{
	Use:   "write-map-info",
	Short: "Dump the MsgId-to-route map to the daemon's file dump directory",
	Run: func(cmd *cobra.Command, args []string) {
		callSimple("write_map_info", (*command.UDSClient).WriteMapInfo)
	},
}

var enableSubReportingCmd = &cobra.Command{
	Use:   "enable-sub-reporting",
	Short: "Turn on ONESUB_TLM emission for future subscribe calls",
	Run: func(cmd *cobra.Command, args []string) {
		callSimple("enable_sub_reporting", (*command.UDSClient).EnableSubReporting)
	},
}

var disableSubReportingCmd = &cobra.Command{
	Use:   "disable-sub-reporting",
	Short: "Turn off ONESUB_TLM emission",
	Run: func(cmd *cobra.Command, args []string) {
		callSimple("disable_sub_reporting", (*command.UDSClient).DisableSubReporting)
	},
}

var sendPrevSubsCmd = &cobra.Command{
	Use:   "send-prev-subs",
	Short: "Replay each MsgId with a global-scope subscriber as segmented ALLSUBS_TLM",
	Run: func(cmd *cobra.Command, args []string) {
		callSimple("send_prev_subs", (*command.UDSClient).SendPrevSubs)
	},
}
