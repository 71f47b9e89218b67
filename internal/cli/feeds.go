package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bryan-buckman/feedkeeper/internal/model"
	"github.com/bryan-buckman/feedkeeper/internal/parser"
	"github.com/bryan-buckman/feedkeeper/internal/rss"
)

func newFeedsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Manage feed subscriptions",
	}
	cmd.AddCommand(newFeedsListCommand(ctx))
	cmd.AddCommand(newFeedsAddCommand(ctx))
	cmd.AddCommand(newFeedsRemoveCommand(ctx))
	cmd.AddCommand(newFeedsAutoUpdateCommand(ctx))
	return cmd
}

func newFeedsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List feeds with their status and counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			all := a.registry.All()
			rows := make([][]string, 0, len(all))
			for _, f := range all {
				st := f.Snapshot()
				rows = append(rows, []string{
					strconv.FormatInt(st.ID, 10),
					st.Title,
					st.URL,
					st.Status.String(),
					strconv.Itoa(st.UnreadCount),
					strconv.Itoa(st.TotalCount),
					a.scheduler.Description(f),
					lastFetched(st.LastFetched),
				})
			}
			return writeTable(cmd.OutOrStdout(),
				[]string{"ID", "TITLE", "URL", "STATUS", "UNREAD", "TOTAL", "AUTO-UPDATE", "FETCHED"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft})
		},
	}
}

func newFeedsAddCommand(ctx *commandContext) *cobra.Command {
	var (
		title    string
		folder   string
		format   string
		mode     string
		interval int
		probe    bool
	)
	cmd := &cobra.Command{
		Use:   "add URL",
		Short: "Subscribe to a feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			parsedFormat, err := parser.ParseFormat(format)
			if err != nil {
				return err
			}
			parsedMode, err := model.ParseAutoUpdateMode(mode)
			if err != nil {
				return err
			}
			record := model.Feed{
				AccountID:          model.DefaultAccountID,
				Title:              title,
				URL:                args[0],
				Format:             string(parsedFormat),
				AutoUpdateMode:     parsedMode,
				AutoUpdateInterval: time.Duration(interval) * time.Minute,
			}

			if probe {
				source := rss.NewHTTPSource(a.client, a.cfg.Fetch.UserAgent, 1, 0)
				raw, err := source.Fetch(cmd.Context(), record.URL)
				if err != nil {
					return err
				}
				info, err := parser.Probe(raw)
				if err != nil {
					return err
				}
				if record.Title == "" {
					record.Title = info.Title
				}
				if parsedFormat == parser.FormatAuto {
					record.Format = string(info.Format)
				}
			}

			if folder != "" {
				var parentID *int64
				for _, name := range strings.Split(folder, "/") {
					if name = strings.TrimSpace(name); name == "" {
						continue
					}
					id, err := a.store.GetOrCreateFolder(cmd.Context(), name, parentID)
					if err != nil {
						return fmt.Errorf("create folder %q: %w", name, err)
					}
					parentID = &id
				}
				record.FolderID = parentID
			}

			f, err := a.manager.AddFeed(cmd.Context(), record)
			if err != nil {
				return err
			}
			st := f.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "Added feed %d: %s\n", st.ID, st.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Feed title (defaults to the URL, or the probed title)")
	cmd.Flags().StringVar(&folder, "folder", "", "Folder path such as News/Tech")
	cmd.Flags().StringVar(&format, "format", "auto", "Payload format: auto, atom, rss or rdf")
	cmd.Flags().StringVar(&mode, "mode", "global", "Auto-update mode: disabled, global or own")
	cmd.Flags().IntVar(&interval, "interval", 0, "Own auto-update interval in minutes")
	cmd.Flags().BoolVar(&probe, "probe", false, "Fetch the feed first to fill in title and format")
	return cmd
}

func newFeedsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Unsubscribe from a feed and delete its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := ctx.openApp(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.manager.RemoveFeed(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed feed %d\n", id)
			return nil
		},
	}
}

func newFeedsAutoUpdateCommand(ctx *commandContext) *cobra.Command {
	var (
		mode     string
		interval int
		global   int
	)
	cmd := &cobra.Command{
		Use:   "auto-update [ID]",
		Short: "Change a feed's auto-update settings, or the global interval with --global",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if global > 0 {
				if err := a.manager.SetGlobalInterval(cmd.Context(), time.Duration(global)*time.Minute); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Global auto-update interval set to %d minutes\n", global)
				if len(args) == 0 {
					return nil
				}
			}
			if len(args) == 0 {
				return fmt.Errorf("feed ID or --global is required")
			}

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			parsedMode, err := model.ParseAutoUpdateMode(mode)
			if err != nil {
				return err
			}
			if err := a.manager.SetAutoUpdate(cmd.Context(), id, parsedMode, time.Duration(interval)*time.Minute); err != nil {
				return err
			}
			f, _ := a.registry.Get(id)
			fmt.Fprintf(cmd.OutOrStdout(), "Feed %d %s\n", id, a.scheduler.Description(f))
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "global", "Auto-update mode: disabled, global or own")
	cmd.Flags().IntVar(&interval, "interval", 0, "Own auto-update interval in minutes")
	cmd.Flags().IntVar(&global, "global", 0, "Set the global auto-update interval in minutes")
	return cmd
}

func lastFetched(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
