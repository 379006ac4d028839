package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/felnan/snapfeed/internal/domain"
	"github.com/felnan/snapfeed/internal/gateway"
	"github.com/felnan/snapfeed/internal/upload"
)

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login <username> <password>",
		Short: "Log in and persist the session token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.session.Login(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}

			snap := app.session.State().Get()
			if snap.User != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", snap.User.Username)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "logged in (profile not loaded yet)")
			}

			return nil
		},
	}
}

func newSignupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "signup <email> <full-name> <username> <password>",
		Short: "Register a new account",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			authenticated, err := app.session.Signup(cmd.Context(),
				args[0], args[1], args[2], args[3])
			if err != nil {
				return err
			}

			if authenticated {
				fmt.Fprintln(cmd.OutOrStdout(), "account created, logged in")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "account created, please log in")
			}

			return nil
		},
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the local session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.session.Logout(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "logged out")

			return nil
		},
	}
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session's profile",
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

			profile := app.session.State().Get().User
			if profile == nil {
				if profile, err = app.session.FetchProfile(cmd.Context()); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", profile.Username, profile.FullName)
			fmt.Fprintf(out, "posts: %d  followers: %d  following: %d\n",
				profile.PostCount, profile.FollowerCount, profile.FollowingCount)

			if profile.Bio != "" {
				fmt.Fprintln(out, profile.Bio)
			}

			return nil
		},
	}
}

func newProfileCommand() *cobra.Command {
	var (
		fullName, bio, website, email, phone string
		avatarPath                           string
	)

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update the profile; set only the flags you want changed",
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

			var patch domain.ProfilePatch

			flags := cmd.Flags()
			if flags.Changed("full-name") {
				patch.FullName = &fullName
			}

			if flags.Changed("bio") {
				patch.Bio = &bio
			}

			if flags.Changed("website") {
				patch.Website = &website
			}

			if flags.Changed("email") {
				patch.Email = &email
			}

			if flags.Changed("phone") {
				patch.Phone = &phone
			}

			avatar, err := loadAvatar(app, avatarPath)
			if err != nil {
				return err
			}

			profile, err := app.session.UpdateProfile(cmd.Context(), patch, avatar)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "profile updated: %s (%s)\n",
				profile.Username, profile.FullName)

			return nil
		},
	}

	cmd.Flags().StringVar(&fullName, "full-name", "", "display name")
	cmd.Flags().StringVar(&bio, "bio", "", "profile bio")
	cmd.Flags().StringVar(&website, "website", "", "website URL")
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	cmd.Flags().StringVar(&phone, "phone", "", "contact phone")
	cmd.Flags().StringVar(&avatarPath, "avatar", "", "path to a new avatar image")

	return cmd
}

func loadAvatar(a *app, path string) (*gateway.File, error) {
	if path == "" {
		return nil, nil //nolint:nilnil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read avatar: %w", err)
	}

	img, err := upload.Load(filepath.Base(path), data, a.cfg.Upload)
	if err != nil {
		return nil, err
	}

	img, err = img.Downscale(a.cfg.Upload)
	if err != nil {
		return nil, err
	}

	file := img.File("avatar")

	return &file, nil
}
