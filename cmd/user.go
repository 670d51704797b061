// -- cmd/user.go --
package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/networkdynamics/gotok/internal/tiktok"
)

var userVideoCount int

var userCmd = &cobra.Command{
	Use:   "user <username>",
	Short: "Fetch a user's profile as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := strings.TrimPrefix(args[0], "@")
		return runWithClient(func(ctx context.Context, client *tiktok.Client) error {
			info, err := client.User(username).Info(ctx)
			if err != nil {
				return err
			}
			return emitPretty(info)
		})
	},
}

var userVideosCmd = &cobra.Command{
	Use:   "videos <username>",
	Short: "Stream a user's posted videos as JSON lines.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := strings.TrimPrefix(args[0], "@")
		return runWithClient(func(ctx context.Context, client *tiktok.Client) error {
			return client.User(username).Videos(ctx, counted(userVideoCount, func(v tiktok.VideoInfo) bool {
				return emit(v)
			}))
		})
	},
}

var userLikedCmd = &cobra.Command{
	Use:   "liked <username>",
	Short: "Stream a user's liked videos as JSON lines (requires public likes).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := strings.TrimPrefix(args[0], "@")
		return runWithClient(func(ctx context.Context, client *tiktok.Client) error {
			return client.User(username).Liked(ctx, counted(userVideoCount, func(v tiktok.VideoInfo) bool {
				return emit(v)
			}))
		})
	},
}

func init() {
	userVideosCmd.Flags().IntVarP(&userVideoCount, "count", "n", 0, "stop after this many videos (0 = all)")
	userLikedCmd.Flags().IntVarP(&userVideoCount, "count", "n", 0, "stop after this many videos (0 = all)")
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(userVideosCmd)
	rootCmd.AddCommand(userLikedCmd)
}
