package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/magister-tools/magctl/internal/service"
)

var (
	homeworkDays      int
	homeworkSubject   string
	homeworkCompleted bool
	homeworkTestsOnly bool
)

// homeworkCmd represents the homework command
var homeworkCmd = &cobra.Command{
	Use:   "homework",
	Short: "Show upcoming homework grouped by day",
	RunE:  runHomework,
}

func init() {
	rootCmd.AddCommand(homeworkCmd)

	homeworkCmd.Flags().IntVar(&homeworkDays, "days", 7, "Number of days to look ahead")
	homeworkCmd.Flags().StringVar(&homeworkSubject, "subject", "", "Filter by subject (case-insensitive partial match)")
	homeworkCmd.Flags().BoolVar(&homeworkCompleted, "completed", false, "Include homework already marked as done")
	homeworkCmd.Flags().BoolVar(&homeworkTestsOnly, "tests", false, "Show upcoming tests only")
}

func runHomework(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	ctx, cancel := signalContext(cmd.Context(), false)
	defer cancel()

	svc, err := newService(ctx, cfg, log, true)
	if err != nil {
		return err
	}

	if homeworkTestsOnly {
		tests, err := svc.UpcomingTests(ctx, homeworkDays)
		if err != nil {
			return fmt.Errorf("failed to fetch tests: %w", err)
		}
		if len(tests) == 0 {
			fmt.Println("Geen toetsen gepland.")
			return nil
		}
		for _, test := range tests {
			fmt.Printf("%s  %-20s %s\n", test.Deadline.Format("02-01 15:04"), test.Subject, test.Description)
		}
		return nil
	}

	days, err := svc.Homework(ctx, service.HomeworkOptions{
		Days:             homeworkDays,
		Subject:          homeworkSubject,
		IncludeCompleted: homeworkCompleted,
		WithAttachments:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to fetch homework: %w", err)
	}
	if len(days) == 0 {
		fmt.Println("Geen huiswerk gevonden.")
		return nil
	}

	for i := range days {
		day := &days[i]
		fmt.Printf("%s:\n", day.Label())
		for _, item := range day.Items {
			marker := "-"
			if item.IsTest {
				marker = "!"
			}
			fmt.Printf("  %s %s: %s\n", marker, item.Subject, item.Description)
			for _, att := range item.Attachments {
				fmt.Printf("      bijlage: %s (%s)\n", att.Name, att.Size)
			}
		}
		fmt.Println()
	}
	return nil
}
