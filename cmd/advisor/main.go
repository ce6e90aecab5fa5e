package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	chatcmder "github.com/degreepathco/advisor/cmd/advisor/chat"
	"github.com/degreepathco/advisor/cmd/advisor/cliconfig"
	historycmder "github.com/degreepathco/advisor/cmd/advisor/history"
	reportcmder "github.com/degreepathco/advisor/cmd/advisor/report"
	studentscmder "github.com/degreepathco/advisor/cmd/advisor/students"
	"github.com/degreepathco/advisor/pkg/tutor"
)

const rootLongDesc string = `advisor is a terminal client for the DegreePath Tutor Service.

It streams tutor replies as they are generated, keeps the visible
transcript consistent with what the service has stored, and exposes the
service's student and report endpoints.

Configuration is read from ~/.config/advisor/config.toml and can be
overridden per invocation with --server and --debug.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "advisor",
		Short:         "Terminal client for the DegreePath Tutor Service",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cliconfig.Register(cmd)

	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(historycmder.NewClearCmd())
	cmd.AddCommand(studentscmder.NewStudentsCmd())
	cmd.AddCommand(reportcmder.NewReportCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newHealthCmd())

	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show conversation statistics from the Tutor Service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cliconfig.Resolve(cmd)
			if err != nil {
				return err
			}

			client := tutor.NewClient(cfg.ServerURL, tutor.WithFirstByteTimeout(cfg.FirstByte()))
			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("could not fetch stats: %w", err)
			}

			fmt.Printf("Active conversations: %d\n", stats.ActiveConversations)
			fmt.Printf("Total messages:       %d\n", stats.TotalMessages)

			ids := make([]string, 0, len(stats.MessagesPerStudent))
			for id := range stats.MessagesPerStudent {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Printf("  %-12s %d\n", id, stats.MessagesPerStudent[id])
			}
			return nil
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the Tutor Service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cliconfig.Resolve(cmd)
			if err != nil {
				return err
			}

			client := tutor.NewClient(cfg.ServerURL, tutor.WithFirstByteTimeout(cfg.FirstByte()))
			if err := client.Health(cmd.Context()); err != nil {
				return fmt.Errorf("tutor service at %s is not healthy: %w", cfg.ServerURL, err)
			}

			fmt.Printf("Tutor service at %s is healthy.\n", cfg.ServerURL)
			return nil
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
