package historycmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/degreepathco/advisor/cmd/advisor/cliconfig"
	"github.com/degreepathco/advisor/pkg/tutor"
)

const historyLongDesc string = `Print the stored conversation for a student.

Each message is prefixed with its role and timestamp as recorded by the
Tutor Service.

Examples:
  advisor history demo001
  advisor history demo001 --tail 10`

const historyShortDesc string = "Show a student's conversation history"

type historyCommander struct {
	tail int
}

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history <student-id>",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().IntVar(&cmder.tail, "tail", 0, "Only show the last N messages")

	return cmd
}

func (c *historyCommander) run(cmd *cobra.Command, studentID string) error {
	cfg, err := cliconfig.Resolve(cmd)
	if err != nil {
		return err
	}

	client := tutor.NewClient(cfg.ServerURL, tutor.WithFirstByteTimeout(cfg.FirstByte()))

	history, err := client.History(cmd.Context(), studentID)
	if err != nil {
		return fmt.Errorf("could not fetch history for %s: %w", studentID, err)
	}

	messages := history.Messages
	if c.tail > 0 && len(messages) > c.tail {
		messages = messages[len(messages)-c.tail:]
	}

	if len(messages) == 0 {
		fmt.Printf("No messages for %s.\n", studentID)
		return nil
	}

	for _, msg := range messages {
		stamp := ""
		if !msg.Timestamp.IsZero() {
			stamp = msg.Timestamp.Format("2006-01-02 15:04:05") + "  "
		}
		fmt.Printf("%s[%s] %s\n", stamp, msg.Role, msg.Content)
	}
	fmt.Printf("\n%d messages total.\n", history.TotalMessages)
	return nil
}

const clearLongDesc string = `Delete the stored conversation for a student on the Tutor Service.

Example:
  advisor clear demo001`

func NewClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear <student-id>",
		Short: "Clear a student's conversation history",
		Long:  clearLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cliconfig.Resolve(cmd)
			if err != nil {
				return err
			}

			client := tutor.NewClient(cfg.ServerURL, tutor.WithFirstByteTimeout(cfg.FirstByte()))
			if err := client.ClearHistory(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("could not clear history for %s: %w", args[0], err)
			}

			fmt.Printf("History cleared for %s.\n", args[0])
			return nil
		},
	}
	return cmd
}
