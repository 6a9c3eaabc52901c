package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sportstream/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently watched matches",
	Args:  cobra.NoArgs,
	RunE:  historyRun,
}

var historyRemoveCmd = &cobra.Command{
	Use:   "rm <source> <match-id>",
	Short: "Forget a match",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := history.Remove(args[0], args[1]); err != nil {
			return fmt.Errorf("removing history entry: %w", err)
		}
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyRemoveCmd)
}

func historyRun(cmd *cobra.Command, args []string) error {
	entries, err := history.Load()
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	if flagJSON {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("No history entries found.")
		return nil
	}
	for _, line := range history.FormatForDisplay(entries) {
		fmt.Println(line)
	}
	return nil
}
