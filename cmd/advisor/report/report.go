package reportcmder

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/degreepathco/advisor/cmd/advisor/cliconfig"
	"github.com/degreepathco/advisor/pkg/tutor"
)

const reportLongDesc string = `Fetch the study report for a unit and render it as markdown.

Pass --student to personalize the report with that student's progress.

Examples:
  advisor report COMP1100
  advisor report COMP2300 --student demo001`

type reportCommander struct {
	studentID string
	raw       bool
}

func NewReportCmd() *cobra.Command {
	cmder := &reportCommander{}

	cmd := &cobra.Command{
		Use:   "report <unit-code>",
		Short: "Show the study report for a unit",
		Long:  reportLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.studentID, "student", "s", "", "Personalize the report for this student")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the markdown without terminal rendering")

	return cmd
}

func (c *reportCommander) run(cmd *cobra.Command, unitCode string) error {
	cfg, err := cliconfig.Resolve(cmd)
	if err != nil {
		return err
	}

	client := tutor.NewClient(cfg.ServerURL, tutor.WithFirstByteTimeout(cfg.FirstByte()))
	report, err := client.Report(cmd.Context(), unitCode, c.studentID)
	if err != nil {
		return fmt.Errorf("could not fetch report for %s: %w", unitCode, err)
	}

	markdown := renderMarkdown(report)

	if c.raw {
		fmt.Print(markdown)
		return nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Print(markdown)
		return nil
	}

	out, err := renderer.Render(markdown)
	if err != nil {
		fmt.Print(markdown)
		return nil
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		out = ansi.Strip(out)
	}
	fmt.Print(out)
	return nil
}

// renderMarkdown flattens the structured report into a markdown document.
func renderMarkdown(r *tutor.TutorReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", r.UnitCode)
	fmt.Fprintf(&b, "**Difficulty:** %s\n\n", r.Difficulty)
	fmt.Fprintf(&b, "%s\n\n", r.Summary)

	if len(r.CoreSkills) > 0 {
		b.WriteString("## Core skills\n\n")
		for _, skill := range r.CoreSkills {
			fmt.Fprintf(&b, "- %s\n", skill)
		}
		b.WriteString("\n")
	}

	if len(r.KeyConcepts) > 0 {
		b.WriteString("## Key concepts\n\n")
		for _, kc := range r.KeyConcepts {
			fmt.Fprintf(&b, "- **%s**: %s\n", kc.Concept, kc.Explain)
		}
		b.WriteString("\n")
	}

	if len(r.StudyPlan) > 0 {
		b.WriteString("## Study plan\n\n")
		for _, week := range r.StudyPlan {
			fmt.Fprintf(&b, "### Week %d\n\n", week.Week)
			for _, task := range week.Tasks {
				fmt.Fprintf(&b, "- %s\n", task)
			}
			b.WriteString("\n")
		}
	}

	if len(r.Quizzes) > 0 {
		b.WriteString("## Practice questions\n\n")
		for i, quiz := range r.Quizzes {
			fmt.Fprintf(&b, "%d. **%s** (%s)\n\n   %s\n\n", i+1, quiz.Question, quiz.Difficulty, quiz.Answer)
		}
	}

	if len(r.PublicResources) > 0 {
		b.WriteString("## Resources\n\n")
		for _, res := range r.PublicResources {
			fmt.Fprintf(&b, "- [%s](%s) (%s): %s\n", res.Title, res.URL, res.Type, res.Why)
		}
		b.WriteString("\n")
	}

	if r.StudentSpecificNote != "" {
		fmt.Fprintf(&b, "## Notes for you\n\n%s\n\n", r.StudentSpecificNote)
	}

	if r.Meta.Source != "" {
		fmt.Fprintf(&b, "---\n\n*Source: %s, generated %s*\n", r.Meta.Source, r.Meta.GeneratedAt)
	}

	return b.String()
}
