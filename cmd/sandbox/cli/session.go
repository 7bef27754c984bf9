package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zamadev/sandbox/internal/model"
	"github.com/zamadev/sandbox/internal/service"
)

// ---------- login ----------

func newLoginCmd() *cobra.Command {
	var (
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the console",
		Long:  "Sign in with an email and password. The session is stored in the profile and used by every other command.",
		Example: `  sandbox login --email user@example.com --password password123
  sandbox login --email user@example.com  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted if omitted)")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runLogin(email, password string) error {
	if password == "" {
		fmt.Print("Password: ")
		pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()
		password = string(pwBytes)
	}

	return withApp(func(ctx context.Context, a *app) error {
		sess, err := a.auth.Login(ctx, email, password)
		if errors.Is(err, service.ErrInvalidCredentials) {
			return fmt.Errorf("invalid email or password")
		}
		if err != nil {
			return err
		}
		printSession("Signed in", sess)
		return nil
	})
}

// ---------- guest ----------

func newGuestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "guest",
		Short: "Continue as a guest",
		Long:  "Sign the profile in as the shared guest account. No password is needed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				sess, err := a.auth.ContinueAsGuest(ctx)
				if err != nil {
					return err
				}
				printSession("Continuing as guest", sess)
				return nil
			})
		},
	}
}

// ---------- logout ----------

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and discard the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if err := a.auth.Logout(ctx); err != nil {
					return err
				}
				fmt.Println("Signed out.")
				return nil
			})
		},
	}
}

// ---------- whoami ----------

func newWhoamiCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				ok, err := a.auth.IsAuthenticated(ctx)
				if err != nil {
					return err
				}
				if !ok {
					if jsonOutput {
						return printJSON(map[string]interface{}{"signedIn": false})
					}
					fmt.Println("Not signed in. Use 'sandbox login' or 'sandbox guest'.")
					return nil
				}
				u, err := a.auth.CurrentUser(ctx)
				if err != nil {
					return err
				}
				tok, err := a.auth.Token(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(map[string]interface{}{"signedIn": true, "user": u, "expiresAt": tok.ExpiresAt()})
				}
				printUser(u)
				fmt.Printf("  Expires: %s\n", humanize.Time(tok.ExpiresAt()))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- refresh ----------

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Replace the session token with a fresh one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				tok, err := a.auth.RefreshToken(ctx)
				if err != nil {
					return err
				}
				fmt.Println("Session refreshed.")
				fmt.Printf("  Expires: %s\n", humanize.Time(tok.ExpiresAt()))
				return nil
			})
		},
	}
}

func printSession(title string, sess *model.Session) {
	fmt.Println(title + ":")
	fmt.Println()
	printUser(&sess.User)
	fmt.Printf("  Expires: in %s\n", time.Duration(sess.Token.ExpiresIn)*time.Second)
}

func printUser(u *model.User) {
	fmt.Printf("  Name:    %s\n", u.Name)
	fmt.Printf("  Email:   %s\n", u.Email)
	fmt.Printf("  Role:    %s\n", u.Role)
	fmt.Printf("  User ID: %s\n", u.ID)
}
