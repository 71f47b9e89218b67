package cli

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/feedkeeper/internal/parser"
	"github.com/bryan-buckman/feedkeeper/internal/textnorm"
)

func newParseCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Parse a saved feed payload and print the normalized entries as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			parsedFormat, err := parser.ParseFormat(format)
			if err != nil {
				return err
			}
			drafts, err := parser.Parse(raw, parsedFormat, time.Now())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(textnorm.Drafts(drafts))
		},
	}
	cmd.Flags().StringVar(&format, "format", "auto", "Payload format: auto, atom, rss or rdf")
	return cmd
}
