package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/KaramelBytes/surveyloom/internal/ai"
	"github.com/KaramelBytes/surveyloom/internal/utils"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage or inspect the model catalog and pricing",
	Example: `  surveyloom models show
  surveyloom models show --json
  surveyloom models sync --file ./models.json --merge
  surveyloom models fetch --url https://example.com/models.json
  surveyloom models fetch --provider ollama --merge`,
}

var modelsShowJSON bool

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current model catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := ai.Catalog()
		// pretty-print deterministic order
		keys := make([]string, 0, len(cat))
		for k := range cat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := cmd.OutOrStdout()
		if modelsShowJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(cat)
		}
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Model", "Context", "In $/1K", "Out $/1K", "Tools"})
		for _, k := range keys {
			mi := cat[k]
			tools := "yes"
			if !mi.ToolCalling {
				tools = "no"
			}
			t.AppendRow(table.Row{k, mi.ContextTokens, fmt.Sprintf("%.5f", mi.InputPerK), fmt.Sprintf("%.5f", mi.OutputPerK), tools})
		}
		t.Render()
		return nil
	},
}

var (
	syncPath  string
	syncMerge bool
)

var modelsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Load model catalog/pricing from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPath == "" {
			return fmt.Errorf("--file is required")
		}
		m, err := ai.LoadCatalogFromJSON(syncPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		if syncMerge {
			ai.MergeCatalog(m)
			fmt.Fprintln(cmd.OutOrStdout(), "Merged model catalog from file")
		} else {
			ai.OverrideCatalog(m)
			fmt.Fprintln(cmd.OutOrStdout(), "Replaced model catalog from file")
		}
		return nil
	},
}

// providerURL returns a catalog URL for a provider from
// SURVEYLOOM_<PROVIDER>_CATALOG_URL. Empty string if unset.
func providerURL(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	return os.Getenv("SURVEYLOOM_" + name + "_CATALOG_URL")
}

var (
	fetchURL      string
	fetchOutput   string
	fetchMerge    bool
	fetchProvider string
)

var modelsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch model catalog/pricing JSON from a URL and apply it",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if fetchURL == "" && fetchProvider != "" {
			fetchURL = providerURL(fetchProvider)
		}
		// If no URL, but a known provider preset exists, apply it locally without network.
		if fetchURL == "" && fetchProvider != "" {
			preset, ok := ai.PresetCatalog(fetchProvider)
			if !ok {
				return fmt.Errorf("unknown --provider: %s (available: %s)", fetchProvider, strings.Join(ai.Providers(), ", "))
			}
			if fetchMerge {
				ai.MergeCatalog(preset)
				fmt.Fprintf(out, "Merged built-in '%s' preset into in-memory catalog\n", fetchProvider)
			} else {
				ai.OverrideCatalog(preset)
				fmt.Fprintf(out, "Replaced in-memory catalog with built-in '%s' preset\n", fetchProvider)
			}
			return writeCatalogFile(cmd, preset)
		}
		if fetchURL == "" {
			return fmt.Errorf("--url is required (or specify --provider with a known preset)")
		}
		m, err := fetchCatalog(fetchURL)
		if err != nil {
			return err
		}
		if err := writeCatalogFile(cmd, m); err != nil {
			return err
		}
		if fetchMerge {
			ai.MergeCatalog(m)
			fmt.Fprintln(out, "Merged fetched catalog into in-memory catalog")
		} else {
			ai.OverrideCatalog(m)
			fmt.Fprintln(out, "Replaced in-memory catalog with fetched catalog")
		}
		return nil
	},
}

func writeCatalogFile(cmd *cobra.Command, m map[string]ai.ModelInfo) error {
	if fetchOutput == "" {
		return nil
	}
	data, err := utils.PrettyJSON(m)
	if err != nil {
		return err
	}
	if err := utils.SafeWriteFile(fetchOutput, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved catalog to %s\n", fetchOutput)
	return nil
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsSyncCmd)
	modelsCmd.AddCommand(modelsFetchCmd)

	modelsShowCmd.Flags().BoolVar(&modelsShowJSON, "json", false, "print the catalog as JSON")

	modelsSyncCmd.Flags().StringVar(&syncPath, "file", "", "path to JSON catalog file")
	modelsSyncCmd.Flags().BoolVar(&syncMerge, "merge", false, "merge into existing catalog instead of replacing")

	modelsFetchCmd.Flags().StringVar(&fetchURL, "url", "", "URL to JSON catalog file")
	modelsFetchCmd.Flags().StringVar(&fetchOutput, "output", "", "optional path to save the fetched JSON")
	modelsFetchCmd.Flags().BoolVar(&fetchMerge, "merge", false, "merge into existing catalog instead of replacing")
	modelsFetchCmd.Flags().StringVar(&fetchProvider, "provider", "", "provider preset (openrouter|openai|anthropic|google|meta|ollama) used when --url is not set")
}
