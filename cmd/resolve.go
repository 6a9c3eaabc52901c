package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errNoStream is returned when nothing playable was found. It exits non-zero.
var errNoStream = errors.New("stream not currently available")

var resolveCmd = &cobra.Command{
	Use:   "resolve <embed-url>",
	Short: "Resolve an embed page into a playable stream URL",
	Args:  cobra.ExactArgs(1),
	RunE:  resolveRun,
}

func resolveRun(cmd *cobra.Command, args []string) error {
	e, err := newExtractor(true)
	if err != nil {
		return err
	}

	result, err := resolveEmbed(cmd.Context(), e, args[0])
	if err != nil {
		return fmt.Errorf("resolving %s: %w", args[0], err)
	}

	stream, ok := result.Get()
	if !ok {
		if flagJSON {
			printJSON(struct{}{})
		}
		return errNoStream
	}

	if flagJSON {
		return printJSON(stream)
	}
	fmt.Println(stream.URL)
	return nil
}
