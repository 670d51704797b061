// -- cmd/comments.go --
package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/networkdynamics/gotok/internal/observability"
	"github.com/networkdynamics/gotok/internal/tiktok"
)

var (
	commentCount   int
	commentReplies bool
)

var commentsCmd = &cobra.Command{
	Use:   "comments <video-url>",
	Short: "Stream a video's comments as JSON lines.",
	Long: `Stream the comment thread of a single video, identified by its watch
URL (https://www.tiktok.com/@user/video/123...). With --replies, each
comment's reply thread is fetched before the comment is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithClient(func(ctx context.Context, client *tiktok.Client) error {
			video, err := client.VideoByURL(args[0])
			if err != nil {
				return err
			}
			return video.Comments(ctx, counted(commentCount, func(c tiktok.Comment) bool {
				if commentReplies && c.ReplyTotal > 0 {
					if err := video.Replies(ctx, &c); err != nil {
						observability.GetLogger().Warn("reply fetch failed",
							zap.String("comment", c.CID), zap.Error(err))
					}
				}
				return emit(c)
			}))
		})
	},
}

var relatedCmd = &cobra.Command{
	Use:   "related <video-url>",
	Short: "Stream videos related to a given video as JSON lines.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithClient(func(ctx context.Context, client *tiktok.Client) error {
			video, err := client.VideoByURL(args[0])
			if err != nil {
				return err
			}
			return video.Related(ctx, counted(commentCount, func(v tiktok.VideoInfo) bool {
				return emit(v)
			}))
		})
	},
}

var videoCmd = &cobra.Command{
	Use:   "video <video-url>",
	Short: "Fetch a single video's metadata as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithClient(func(ctx context.Context, client *tiktok.Client) error {
			video, err := client.VideoByURL(args[0])
			if err != nil {
				return err
			}
			info, err := video.Info(ctx)
			if err != nil {
				return err
			}
			return emitPretty(info)
		})
	},
}

func init() {
	commentsCmd.Flags().IntVarP(&commentCount, "count", "n", 0, "stop after this many comments (0 = all)")
	commentsCmd.Flags().BoolVar(&commentReplies, "replies", false, "fetch each comment's reply thread")
	relatedCmd.Flags().IntVarP(&commentCount, "count", "n", 0, "stop after this many videos (0 = all)")
	rootCmd.AddCommand(commentsCmd)
	rootCmd.AddCommand(relatedCmd)
	rootCmd.AddCommand(videoCmd)
}
