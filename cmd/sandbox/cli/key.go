package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zamadev/sandbox/internal/model"
	"github.com/zamadev/sandbox/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, rotate, revoke and delete the signed-in user's API keys.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyShowCmd())
	cmd.AddCommand(newKeyRevokeCmd())
	cmd.AddCommand(newKeyRegenerateCmd())
	cmd.AddCommand(newKeyDeleteCmd())

	return cmd
}

// signedInUser returns the session user or a hint to sign in.
func signedInUser(ctx context.Context, a *app) (*model.User, error) {
	u, err := a.auth.RequireUser(ctx)
	if errors.Is(err, service.ErrNotAuthenticated) {
		return nil, fmt.Errorf("not signed in; use 'sandbox login' or 'sandbox guest' first")
	}
	return u, err
}

// keyError turns service errors into CLI messages.
func keyError(keyID string, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return fmt.Errorf("no API key %q (see 'sandbox key list')", keyID)
	case errors.Is(err, service.ErrKeyRevoked):
		return fmt.Errorf("API key %q is revoked and cannot be regenerated", keyID)
	}
	return err
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		name       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new active API key. The full secret is printed once; later listings only show it masked.",
		Example: `  sandbox key create --name "CI pipeline"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				u, err := signedInUser(ctx, a)
				if err != nil {
					return err
				}
				key, err := a.keys.CreateKey(ctx, model.CreateKeyInput{UserID: u.ID, Name: name})
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(key)
				}
				printNewKey("API Key created:", key)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name for the key (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagRequired("name")

	return cmd
}

func printNewKey(title string, key *model.APIKey) {
	fmt.Println(title)
	fmt.Println()
	fmt.Printf("  ID:   %s\n", key.ID)
	fmt.Printf("  Name: %s\n", key.Name)
	fmt.Printf("  Key:  %s\n", key.Key)
	fmt.Println()
	fmt.Println("  Save this key now - listings only show it masked.")
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return runKeyList(ctx, a, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(ctx context.Context, a *app, jsonOutput bool) error {
	u, err := signedInUser(ctx, a)
	if err != nil {
		return err
	}
	list, err := a.keys.GetAllKeys(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	type keyRow struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		MaskedKey string          `json:"maskedKey"`
		Status    model.KeyStatus `json:"status"`
		Created   string          `json:"createdAt"`
	}

	rows := make([]keyRow, len(list.Keys))
	for i, k := range list.Keys {
		rows[i] = keyRow{
			ID:        k.ID,
			Name:      k.Name,
			MaskedKey: k.MaskedKey,
			Status:    k.Status,
			Created:   k.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOutput {
		return printJSON(map[string]interface{}{"keys": rows, "skipped": list.Skipped})
	}

	if len(rows) == 0 {
		fmt.Println("No API keys yet. Use 'sandbox key create --name <name>' to create one.")
	} else {
		fmt.Printf("%-28s %-20s %-20s %-8s %s\n", "ID", "NAME", "KEY", "STATUS", "CREATED")
		fmt.Printf("%-28s %-20s %-20s %-8s %s\n", "--", "----", "---", "------", "-------")
		for i, k := range rows {
			fmt.Printf("%-28s %-20s %-20s %-8s %s\n", k.ID, k.Name, k.MaskedKey, k.Status, humanize.Time(list.Keys[i].CreatedAt))
		}
	}
	if n := len(list.Skipped); n > 0 {
		fmt.Printf("\n%d stored key(s) could not be decrypted and were skipped.\n", n)
	}
	return nil
}

// ---------- key show ----------

func newKeyShowCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show <key-id>",
		Short: "Show one API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				u, err := signedInUser(ctx, a)
				if err != nil {
					return err
				}
				key, err := a.keys.GetKey(ctx, model.KeyOperationInput{KeyID: args[0], UserID: u.ID})
				if err != nil {
					return keyError(args[0], err)
				}
				secret := key.MaskedKey
				if reveal {
					secret = key.Key
				}
				fmt.Printf("  ID:      %s\n", key.ID)
				fmt.Printf("  Name:    %s\n", key.Name)
				fmt.Printf("  Key:     %s\n", secret)
				fmt.Printf("  Status:  %s\n", key.Status)
				fmt.Printf("  Created: %s (%s)\n", key.CreatedAt.UTC().Format("2006-01-02 15:04:05"), humanize.Time(key.CreatedAt))
				if key.LastUsedAt != nil {
					fmt.Printf("  Used:    %s\n", humanize.Time(*key.LastUsedAt))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the full secret instead of the masked form")

	return cmd
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Long:  "Mark an API key as revoked. It stays listed but can no longer be regenerated.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				u, err := signedInUser(ctx, a)
				if err != nil {
					return err
				}
				if err := a.keys.RevokeKey(ctx, model.KeyOperationInput{KeyID: args[0], UserID: u.ID}); err != nil {
					return keyError(args[0], err)
				}
				fmt.Printf("Revoked API key %q\n", args[0])
				return nil
			})
		},
	}
}

// ---------- key regenerate ----------

func newKeyRegenerateCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "regenerate <key-id>",
		Aliases: []string{"rotate"},
		Short:   "Revoke an API key and issue a replacement",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				u, err := signedInUser(ctx, a)
				if err != nil {
					return err
				}
				key, err := a.keys.RegenerateKey(ctx, model.KeyOperationInput{KeyID: args[0], UserID: u.ID})
				if err != nil {
					return keyError(args[0], err)
				}
				if jsonOutput {
					return printJSON(key)
				}
				printNewKey(fmt.Sprintf("Revoked %s. Replacement created:", args[0]), key)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- key delete ----------

func newKeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <key-id>",
		Aliases: []string{"rm"},
		Short:   "Permanently delete an API key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				u, err := signedInUser(ctx, a)
				if err != nil {
					return err
				}
				if err := a.keys.DeleteKey(ctx, model.KeyOperationInput{KeyID: args[0], UserID: u.ID}); err != nil {
					return keyError(args[0], err)
				}
				fmt.Printf("Deleted API key %q\n", args[0])
				return nil
			})
		},
	}
}
