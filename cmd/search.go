// -- cmd/search.go --
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/networkdynamics/gotok/internal/tiktok"
)

var (
	searchCount int
	searchKind  string
)

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Stream search results as JSON lines.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithClient(func(ctx context.Context, client *tiktok.Client) error {
			search := client.Search(args[0])
			switch searchKind {
			case "user", "users":
				return search.Users(ctx, counted(searchCount, func(u tiktok.SearchUser) bool {
					return emit(u)
				}))
			case "video", "videos":
				return search.Videos(ctx, counted(searchCount, func(v tiktok.VideoInfo) bool {
					return emit(v)
				}))
			default:
				return fmt.Errorf("unknown search type %q (want user or video)", searchKind)
			}
		})
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchCount, "count", "n", 0, "stop after this many results (0 = all)")
	searchCmd.Flags().StringVarP(&searchKind, "type", "t", "user", "what to search for: user or video")
	rootCmd.AddCommand(searchCmd)
}
