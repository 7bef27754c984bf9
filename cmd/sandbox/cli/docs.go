package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zamadev/sandbox/internal/config"
	"github.com/zamadev/sandbox/internal/docs"
	"github.com/zamadev/sandbox/internal/model"
	"github.com/zamadev/sandbox/internal/openapi"
)

func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Integration docs: OpenAPI document, code examples and model reference",
	}

	cmd.AddCommand(newDocsOpenAPICmd())
	cmd.AddCommand(newDocsExamplesCmd())
	cmd.AddCommand(newDocsSchemasCmd())

	return cmd
}

// serverURL is the address advertised in the OpenAPI document.
func serverURL(cfg *config.Config) string {
	if cfg.Server.PublicURL != "" {
		return cfg.Server.PublicURL
	}
	return fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
}

// ---------- docs openapi ----------

func newDocsOpenAPICmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI 3 document of the console API",
		Example: `  sandbox docs openapi              # print to stdout
  sandbox docs openapi -o spec.json  # write to file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			doc := openapi.GenerateConsoleSpec(serverURL(cfg))
			jsonBytes, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal openapi document: %w", err)
			}
			if outputFile == "" {
				fmt.Println(string(jsonBytes))
				return nil
			}
			if err := os.WriteFile(outputFile, jsonBytes, 0644); err != nil {
				return fmt.Errorf("write %s: %w", outputFile, err)
			}
			fmt.Printf("Wrote OpenAPI document to %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the document to file instead of stdout")

	return cmd
}

// ---------- docs examples ----------

func newDocsExamplesCmd() *cobra.Command {
	var (
		keyID      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "examples",
		Short: "Print cURL, Node.js and Python snippets",
		Long:  "Print integration snippets. With --key-id the snippets embed that key's secret; otherwise a placeholder is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			docsCfg := docs.DefaultConfig(cfg.Docs.BaseURL)

			secret := ""
			if keyID != "" {
				err := withApp(func(ctx context.Context, a *app) error {
					u, err := signedInUser(ctx, a)
					if err != nil {
						return err
					}
					key, err := a.keys.GetKey(ctx, model.KeyOperationInput{KeyID: keyID, UserID: u.ID})
					if err != nil {
						return keyError(keyID, err)
					}
					secret = key.Key
					return nil
				})
				if err != nil {
					return err
				}
			}

			examples := docs.CodeExamples(secret, docsCfg.APIEndpoint)
			if jsonOutput {
				return printJSON(examples)
			}
			for _, ex := range examples {
				fmt.Printf("# %s\n\n%s\n\n", ex.Title, ex.Code)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&keyID, "key-id", "", "Embed the secret of this key")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- docs schemas ----------

func newDocsSchemasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schemas [model]",
		Short: "Print the type signatures of the data models",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			doc := openapi.GenerateConsoleSpec(serverURL(cfg))
			schemas := openapi.FormatComponents(doc)

			if len(args) == 1 {
				s, ok := schemas[args[0]]
				if !ok {
					return fmt.Errorf("unknown model %q (known: %v)", args[0], openapi.SchemaNames(doc))
				}
				fmt.Println(s)
				return nil
			}
			for _, name := range openapi.SchemaNames(doc) {
				fmt.Printf("%s %s\n\n", name, schemas[name])
			}
			return nil
		},
	}
}
