package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/feedkeeper/internal/model"
)

func newMessagesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Inspect and mark messages",
	}
	cmd.AddCommand(newMessagesListCommand(ctx))
	cmd.AddCommand(newMessagesReadCommand(ctx))
	return cmd
}

func newMessagesListCommand(ctx *commandContext) *cobra.Command {
	var onlyUnread bool
	cmd := &cobra.Command{
		Use:   "list FEED_ID",
		Short: "List a feed's messages, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			feedID, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := ctx.openApp(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			f, ok := a.registry.Get(feedID)
			if !ok {
				return fmt.Errorf("feed %d: %w", feedID, model.ErrFeedNotFound)
			}
			msgs, err := a.store.GetMessages(cmd.Context(), feedID, f.AccountID(), onlyUnread)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(msgs))
			for _, m := range msgs {
				rows = append(rows, []string{
					strconv.FormatInt(m.ID, 10),
					m.Created.Local().Format(time.DateTime),
					readMark(m.IsRead),
					m.Title,
					m.URL,
				})
			}
			return writeTable(cmd.OutOrStdout(), []string{"ID", "CREATED", "READ", "TITLE", "URL"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft})
		},
	}
	cmd.Flags().BoolVar(&onlyUnread, "unread", false, "Show only unread messages")
	return cmd
}

func newMessagesReadCommand(ctx *commandContext) *cobra.Command {
	var unread bool
	cmd := &cobra.Command{
		Use:   "read ID...",
		Short: "Mark messages as read (or unread with --unread)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			a, err := ctx.openApp(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.manager.MarkRead(cmd.Context(), ids, !unread); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d message(s) %s\n", len(ids), map[bool]string{true: "unread", false: "read"}[unread])
			return nil
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "Mark as unread instead")
	return cmd
}

func readMark(read bool) string {
	if read {
		return "yes"
	}
	return "no"
}
