package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/degreepathco/advisor/cmd/advisor/cliconfig"
	"github.com/degreepathco/advisor/pkg/logger"
	"github.com/degreepathco/advisor/pkg/session"
	"github.com/degreepathco/advisor/pkg/tutor"
)

const chatLongDesc string = `Start an interactive chat with the tutor for one student.

The conversation streams token by token. The student's message is shown
immediately and retracted if the turn fails, so the visible transcript
always matches what the Tutor Service has confirmed.

By default a full-screen TUI is used when stdout is a terminal; --plain
forces a simple line-mode loop.

Examples:
  advisor chat --student demo001
  advisor chat --student demo002 --plain
  advisor chat --student demo001 --buffered`

const chatShortDesc string = "Chat with the tutor"

type chatCommander struct {
	studentID string
	plain     bool
	buffered  bool
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.studentID, "student", "s", "", "Student id for the conversation")
	cmd.MarkFlagRequired("student")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Line-mode chat without the TUI")
	cmd.Flags().BoolVar(&cmder.buffered, "buffered", false, "Use the buffered endpoint instead of streaming")

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command) error {
	cfg, err := cliconfig.Resolve(cmd)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Debug)
	defer log.Sync()

	ctx := cmd.Context()
	client := tutor.NewClient(cfg.ServerURL, tutor.WithFirstByteTimeout(cfg.FirstByte()))

	profile, err := client.GetStudent(ctx, c.studentID)
	if err != nil {
		return fmt.Errorf("could not load student %s: %w", c.studentID, err)
	}

	if c.plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		return c.runPlain(ctx, cfg, client, log, profile)
	}
	return c.runTUI(ctx, cfg, client, log, profile)
}

// runPlain is the line-mode loop: prompt, stream the reply as it arrives,
// repeat. Used for non-TTY stdout and --plain.
func (c *chatCommander) runPlain(ctx context.Context, cfg cliconfig.Config, client *tutor.Client, log *zap.Logger, profile *tutor.StudentProfile) error {
	out := termenv.NewOutput(os.Stdout)
	youLabel := out.String("you> ").Bold().String()
	tutorLabel := out.String("tutor> ").Bold().Foreground(out.Color("6")).String()

	printed := 0
	sess := session.New(client, c.studentID,
		session.WithLogger(log),
		session.WithStallTimeout(cfg.Stall()),
		session.WithPartialHandler(func(full string) {
			fmt.Print(full[printed:])
			printed = len(full)
		}),
	)

	if err := sess.LoadHistory(ctx); err != nil {
		return err
	}
	for _, msg := range sess.Transcript() {
		label := youLabel
		if msg.Role == tutor.RoleTutor {
			label = tutorLabel
		}
		fmt.Println(label + msg.Content)
	}

	fmt.Printf("Chatting as %s (%s). /clear wipes history, /quit exits.\n", profile.Name, profile.StudentID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(youLabel)
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())

		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			if err := sess.ClearHistory(ctx); err != nil {
				fmt.Printf("could not clear history: %v\n", err)
			} else {
				fmt.Println("history cleared")
			}
			continue
		}

		printed = 0
		fmt.Print(tutorLabel)
		if c.buffered {
			msg, err := sess.SendTurnBuffered(ctx, text)
			if err != nil {
				fmt.Printf("turn failed, message not kept: %v\n", err)
				continue
			}
			fmt.Println(msg.Content)
			continue
		}

		if _, err := sess.SendTurn(ctx, text); err != nil {
			fmt.Printf("turn failed, message not kept: %v\n", err)
			continue
		}
		fmt.Println()
	}
}
