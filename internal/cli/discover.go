package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/feedkeeper/internal/discover"
)

func newDiscoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "discover URL",
		Short: "List the feeds a web page advertises",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: cfg.FetchTimeout()}
			links, err := discover.Find(cmd.Context(), client, args[0])
			if err != nil {
				return err
			}
			if len(links) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No feeds found")
				return nil
			}
			rows := make([][]string, 0, len(links))
			for _, l := range links {
				rows = append(rows, []string{l.Format, l.Title, l.URL})
			}
			return writeTable(cmd.OutOrStdout(), []string{"FORMAT", "TITLE", "URL"}, rows, nil)
		},
	}
}
