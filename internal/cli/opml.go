package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/feedkeeper/internal/model"
	"github.com/bryan-buckman/feedkeeper/internal/opml"
)

func newOPMLCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opml",
		Short: "Import or export subscriptions as OPML",
	}
	cmd.AddCommand(newOPMLImportCommand(ctx))
	cmd.AddCommand(newOPMLExportCommand(ctx))
	return cmd
}

func newOPMLImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Create folders and feeds from an OPML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			entries, err := opml.Parse(file)
			if err != nil {
				return err
			}

			a, err := ctx.openApp(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := opml.Import(cmd.Context(), a.store, entries, model.AutoUpdateGlobal)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d feed(s), %d already present\n", len(res.Created), res.Skipped)
			for _, u := range res.Invalid {
				fmt.Fprintf(out, "Skipped invalid URL %q\n", u)
			}
			return nil
		},
	}
}

func newOPMLExportCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all subscriptions as OPML",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := opml.Collect(cmd.Context(), a.store)
			if err != nil {
				return err
			}
			data, err := opml.Export("Feedkeeper Feeds", entries, time.Now())
			if err != nil {
				return err
			}

			if output != "" && output != "-" {
				return os.WriteFile(output, data, 0o644)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}
