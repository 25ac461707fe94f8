package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samsaffron/oauth-codex/internal/reqlog"
)

var usageDays int

func init() {
	usageCmd.Flags().IntVar(&usageDays, "days", 30, "Window in days (0 for everything)")
	rootCmd.AddCommand(usageCmd)
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show recorded request and token usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := reqlog.DefaultPath()
		if err != nil {
			return err
		}
		store, err := reqlog.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()

		totals, err := store.UsageTotals(cmd.Context(), usageDays)
		if err != nil {
			return err
		}

		s := styles()
		window := "all time"
		if usageDays > 0 {
			window = fmt.Sprintf("last %d days", usageDays)
		}
		fmt.Println(s.Title.Render("Usage (" + window + ")"))
		fmt.Printf("  %s %d\n", s.Muted.Render("requests:     "), totals.Requests)
		fmt.Printf("  %s %d\n", s.Muted.Render("input tokens: "), totals.InputTokens)
		fmt.Printf("  %s %d\n", s.Muted.Render("output tokens:"), totals.OutputTokens)
		fmt.Printf("  %s %d\n", s.Muted.Render("cached tokens:"), totals.CachedTokens)

		entries, err := store.List(cmd.Context(), 10)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			fmt.Println()
			fmt.Println(s.Title.Render("Recent requests"))
			for _, e := range entries {
				mark := " "
				if e.Error != "" || e.Status >= 400 {
					mark = s.Error.Render("!")
				}
				fmt.Printf("%s %s  %-24s  %d in / %d out\n",
					mark,
					s.Muted.Render(e.CreatedAt.Local().Format("Jan 02 15:04")),
					e.Path,
					e.InputTokens, e.OutputTokens)
			}
		}
		return nil
	},
}
