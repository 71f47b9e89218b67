package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/feedkeeper/internal/model"
	"github.com/bryan-buckman/feedkeeper/internal/rss"
)

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	var feedID int64
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch feeds once and merge new messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			a.coordinator.Start(cmd.Context())
			defer a.coordinator.Stop()

			results := make(map[int64]rss.Outcome)
			if feedID != 0 {
				ch, ok := a.coordinator.Trigger(cmd.Context(), feedID)
				if !ok {
					return fmt.Errorf("feed %d: %w", feedID, model.ErrFeedNotFound)
				}
				select {
				case out := <-ch:
					results[feedID] = out
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				}
			} else {
				results, err = a.coordinator.RefreshAll(cmd.Context())
				if err != nil {
					return err
				}
			}
			return printOutcomes(cmd, results)
		},
	}
	cmd.Flags().Int64Var(&feedID, "feed", 0, "Refresh only the feed with this ID")
	return cmd
}

func printOutcomes(cmd *cobra.Command, results map[int64]rss.Outcome) error {
	ids := make([]int64, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		out := results[id]
		rows = append(rows, []string{
			strconv.FormatInt(id, 10),
			out.Status.String(),
			strconv.Itoa(out.Updated),
			out.Detail,
		})
	}
	return writeTable(cmd.OutOrStdout(), []string{"FEED", "STATUS", "UPDATED", "DETAIL"}, rows, []columnAlignment{alignRight, alignLeft, alignRight, alignLeft})
}
