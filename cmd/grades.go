package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/magister-tools/magctl/internal/service"
)

var gradesLimit int

// gradesCmd represents the grades command
var gradesCmd = &cobra.Command{
	Use:   "grades",
	Short: "Show recent grades",
	RunE:  runGrades,
}

func init() {
	rootCmd.AddCommand(gradesCmd)

	gradesCmd.Flags().IntVar(&gradesLimit, "limit", 10, "Maximum number of grades to show")
}

func runGrades(cmd *cobra.Command, args []string) error {
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

	grades, err := svc.RecentGrades(ctx, gradesLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch grades: %w", err)
	}
	if len(grades) == 0 {
		fmt.Println("Geen cijfers gevonden.")
		return nil
	}

	for _, g := range grades {
		marker := " "
		if !g.IsSufficient {
			marker = "!"
		}
		line := fmt.Sprintf("%s %-20s %5s", marker, g.Subject, g.Value)
		if g.Description != "" {
			line += "  " + g.Description
		}
		if g.EnteredAt != nil {
			line += fmt.Sprintf("  (%s)", g.EnteredAt.Format("02-01-2006"))
		}
		fmt.Println(line)
	}

	if avg, ok := service.WeightedAverage(grades); ok {
		fmt.Printf("\nGewogen gemiddelde: %.2f\n", avg)
	}
	return nil
}
