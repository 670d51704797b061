// -- cmd/hashtag.go --
package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/networkdynamics/gotok/internal/tiktok"
)

var (
	hashtagCount int
	hashtagInfo  bool
)

var hashtagCmd = &cobra.Command{
	Use:   "hashtag <name>",
	Short: "Stream a hashtag's videos as JSON lines.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimPrefix(args[0], "#")
		return runWithClient(func(ctx context.Context, client *tiktok.Client) error {
			tag := client.Hashtag(name)
			if hashtagInfo {
				info, err := tag.Info(ctx)
				if err != nil {
					return err
				}
				return emitPretty(info)
			}
			return tag.Videos(ctx, counted(hashtagCount, func(v tiktok.VideoInfo) bool {
				return emit(v)
			}))
		})
	},
}

func init() {
	hashtagCmd.Flags().IntVarP(&hashtagCount, "count", "n", 0, "stop after this many videos (0 = all)")
	hashtagCmd.Flags().BoolVar(&hashtagInfo, "info", false, "print hashtag metadata instead of videos")
	rootCmd.AddCommand(hashtagCmd)
}
