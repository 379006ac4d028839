package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/felnan/snapfeed/internal/domain"
	"github.com/felnan/snapfeed/internal/upload"
)

func newFeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "feed",
		Short: "Fetch and print the feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.requireSession(cmd.Context()); err != nil {
				return err
			}

			if err := app.feed.Refresh(cmd.Context()); err != nil {
				return err
			}

			snap := app.feed.Feed().Get()
			overlay := app.feed.Overlay().Get()

			for _, post := range snap.Posts {
				printPost(cmd, post, overlay.LikeCount(post), overlay.Liked(post.ID))
			}

			return nil
		},
	}
}

func newPostCommand() *cobra.Command {
	var caption string

	cmd := &cobra.Command{
		Use:   "post <image-file>",
		Short: "Publish a new post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.requireSession(cmd.Context()); err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			img, err := upload.Load(filepath.Base(args[0]), data, app.cfg.Upload)
			if err != nil {
				return err
			}

			if img, err = img.Downscale(app.cfg.Upload); err != nil {
				return err
			}

			post, err := app.feed.Create(cmd.Context(), caption, img.File("image"))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "posted #%d\n", post.ID)

			return nil
		},
	}

	cmd.Flags().StringVar(&caption, "caption", "", "post caption")

	return cmd
}

func newLikeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "like <post-id>",
		Short: "Toggle the like on a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.requireSession(cmd.Context()); err != nil {
				return err
			}

			postID, err := parsePostID(args[0])
			if err != nil {
				return err
			}

			if err := app.feed.Refresh(cmd.Context()); err != nil {
				return err
			}

			if err := app.feed.ToggleLike(cmd.Context(), postID); err != nil {
				return err
			}

			overlay := app.feed.Overlay().Get()
			if overlay.Liked(postID) {
				fmt.Fprintf(cmd.OutOrStdout(), "liked #%d\n", postID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "unliked #%d\n", postID)
			}

			return nil
		},
	}
}

func newCommentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "comment <post-id> <text>",
		Short: "Comment on a post",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.requireSession(cmd.Context()); err != nil {
				return err
			}

			postID, err := parsePostID(args[0])
			if err != nil {
				return err
			}

			if err := app.feed.Refresh(cmd.Context()); err != nil {
				return err
			}

			comment, err := app.feed.AddComment(cmd.Context(), postID, args[1])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "commented on #%d as %s\n",
				postID, comment.Author.Username)

			return nil
		},
	}
}

func parsePostID(arg string) (int64, error) {
	postID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse post id %q: %w", arg, err)
	}

	return postID, nil
}

func printPost(cmd *cobra.Command, post domain.Post, likes int, liked bool) {
	out := cmd.OutOrStdout()

	marker := " "
	if liked {
		marker = "*"
	}

	fmt.Fprintf(out, "#%d %s@%s  %d likes, %d comments\n",
		post.ID, marker, post.Author.Username, likes, post.CommentCount)

	if post.Caption != "" {
		fmt.Fprintf(out, "    %s\n", post.Caption)
	}
}
