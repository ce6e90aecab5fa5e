package studentscmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/degreepathco/advisor/cmd/advisor/cliconfig"
	"github.com/degreepathco/advisor/pkg/tutor"
)

const studentsLongDesc string = `Work with student profiles on the Tutor Service.

Examples:
  advisor students list
  advisor students get demo001
  advisor students create --id s123 --name "Jamie Park" --degree "Bachelor of Science" --major "Data Science"`

func NewStudentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "students",
		Short: "List, inspect, and create student profiles",
		Long:  studentsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newCreateCmd())

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all student profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cliconfig.Resolve(cmd)
			if err != nil {
				return err
			}

			client := tutor.NewClient(cfg.ServerURL, tutor.WithFirstByteTimeout(cfg.FirstByte()))
			students, err := client.ListStudents(cmd.Context())
			if err != nil {
				return fmt.Errorf("could not list students: %w", err)
			}

			if len(students) == 0 {
				fmt.Println("No students registered.")
				return nil
			}
			for _, s := range students {
				fmt.Printf("%-10s %-20s %s, %s\n", s.StudentID, s.Name, s.Degree, s.Major)
			}
			return nil
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <student-id>",
		Short: "Show one student profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cliconfig.Resolve(cmd)
			if err != nil {
				return err
			}

			client := tutor.NewClient(cfg.ServerURL, tutor.WithFirstByteTimeout(cfg.FirstByte()))
			s, err := client.GetStudent(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("could not fetch student %s: %w", args[0], err)
			}

			fmt.Printf("ID:        %s\n", s.StudentID)
			fmt.Printf("Name:      %s\n", s.Name)
			fmt.Printf("Degree:    %s\n", s.Degree)
			fmt.Printf("Major:     %s\n", s.Major)
			fmt.Printf("Completed: %s\n", joinOrDash(s.CompletedUnits))
			fmt.Printf("Enrolled:  %s\n", joinOrDash(s.EnrolledUnits))
			return nil
		},
	}
}

type createCommander struct {
	id        string
	name      string
	degree    string
	major     string
	completed []string
	enrolled  []string
}

func newCreateCmd() *cobra.Command {
	cmder := &createCommander{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new student profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.id, "id", "", "Student id")
	cmd.Flags().StringVar(&cmder.name, "name", "", "Full name")
	cmd.Flags().StringVar(&cmder.degree, "degree", "", "Degree program")
	cmd.Flags().StringVar(&cmder.major, "major", "", "Major")
	cmd.Flags().StringSliceVar(&cmder.completed, "completed", nil, "Completed unit codes")
	cmd.Flags().StringSliceVar(&cmder.enrolled, "enrolled", nil, "Enrolled unit codes")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("name")

	return cmd
}

func (c *createCommander) run(cmd *cobra.Command) error {
	cfg, err := cliconfig.Resolve(cmd)
	if err != nil {
		return err
	}

	client := tutor.NewClient(cfg.ServerURL, tutor.WithFirstByteTimeout(cfg.FirstByte()))
	profile := tutor.StudentProfile{
		StudentID:      c.id,
		Name:           c.name,
		Degree:         c.degree,
		Major:          c.major,
		CompletedUnits: c.completed,
		EnrolledUnits:  c.enrolled,
	}

	created, err := client.CreateStudent(cmd.Context(), profile)
	if err != nil {
		return fmt.Errorf("could not create student %s: %w", c.id, err)
	}

	fmt.Printf("Created %s (%s).\n", created.StudentID, created.Name)
	return nil
}

func joinOrDash(units []string) string {
	if len(units) == 0 {
		return "-"
	}
	return strings.Join(units, ", ")
}
