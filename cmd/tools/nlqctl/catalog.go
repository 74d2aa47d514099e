package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"wapi-nlq/internal/common/config"
	nlqhttp "wapi-nlq/internal/common/http"
	"wapi-nlq/internal/nlq/catalog"
	"wapi-nlq/pkg/registry"
)

func newCatalogCmd(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Export the intent catalog the pipeline would load",
		Long: `Without a subcommand, catalog loads the catalog named by catalog.source
(falling back to the built-in one) and writes it in the registry format.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}

			client := nlqhttp.NewClient(config.GetDuration(cfg.Grid.Timeout))
			cat := catalog.Load(cmd.Context(), cfg.Catalog, cfg.Grid, catalog.NewLiveLoader(client, log), log)
			reg := cat.ToRegistry(cfg.Grid.WAPIVersion)

			if out != "" {
				if err := saveRegistry(out, reg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d intents from the %s catalog to %s\n", cat.Len(), cat.Source(), out)
				return nil
			}
			data, err := json.MarshalIndent(reg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the registry file here instead of stdout")

	cmd.AddCommand(newCatalogAddCmd(), newCatalogUpdateCmd(), newCatalogValidateCmd())
	return cmd
}

func newCatalogAddCmd() *cobra.Command {
	var (
		path   string
		intent registry.Intent
	)
	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Add an intent to a registry file, creating the file if needed",
		Example: `  nlqctl catalog add -f configs/intents.json --name find_zone --method GET --endpoint zone_auth --searchable fqdn,comment`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.LoadRegistry(path)
			if err != nil {
				if !os.IsNotExist(err) {
					return fmt.Errorf("failed to load registry: %w", err)
				}
				reg = &registry.IntentRegistry{Version: "1.0", Intents: []registry.Intent{}}
			}

			for _, existing := range reg.Intents {
				if existing.Name == intent.Name {
					return fmt.Errorf("intent %s already exists", intent.Name)
				}
			}
			intent.Method = strings.ToUpper(intent.Method)
			reg.Intents = append(reg.Intents, intent)

			if err := checkRegistry(reg); err != nil {
				return err
			}
			if err := saveRegistry(path, reg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added intent: %s\n", intent.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "configs/intents.json", "registry file")
	cmd.Flags().StringVar(&intent.Name, "name", "", "intent name, e.g. find_zone")
	cmd.Flags().StringVar(&intent.Method, "method", "GET", "HTTP method")
	cmd.Flags().StringVar(&intent.Endpoint, "endpoint", "", "WAPI object path, e.g. zone_auth")
	cmd.Flags().StringVar(&intent.Description, "description", "", "description")
	cmd.Flags().StringSliceVar(&intent.Fields, "fields", nil, "fields sent on create")
	cmd.Flags().StringSliceVar(&intent.RequiredFields, "required", nil, "fields that must be present on create")
	cmd.Flags().StringSliceVar(&intent.SearchableFields, "searchable", nil, "fields usable as search filters")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("endpoint")
	return cmd
}

func newCatalogUpdateCmd() *cobra.Command {
	var path, name, field, value string
	cmd := &cobra.Command{
		Use:     "update",
		Short:   "Change one field of an intent in a registry file",
		Example: `  nlqctl catalog update -f configs/intents.json --name find_zone --field searchable --value fqdn,view`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.LoadRegistry(path)
			if err != nil {
				return fmt.Errorf("failed to load registry: %w", err)
			}

			found := false
			for i := range reg.Intents {
				if reg.Intents[i].Name != name {
					continue
				}
				found = true
				if err := setIntentField(&reg.Intents[i], field, value); err != nil {
					return err
				}
				break
			}
			if !found {
				return fmt.Errorf("intent %s not found", name)
			}

			if err := checkRegistry(reg); err != nil {
				return err
			}
			if err := saveRegistry(path, reg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated intent %s, field %s to %s\n", name, field, value)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "configs/intents.json", "registry file")
	cmd.Flags().StringVar(&name, "name", "", "intent to update")
	cmd.Flags().StringVar(&field, "field", "", "method, endpoint, description, fields, required or searchable")
	cmd.Flags().StringVar(&value, "value", "", "new value; lists are comma separated")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func newCatalogValidateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that a registry file loads as an intent catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.LoadFile(path)
			if err != nil {
				return fmt.Errorf("registry validation failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registry validation passed. Found %d intents.\n", cat.Len())
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "configs/intents.json", "registry file")
	return cmd
}

func setIntentField(in *registry.Intent, field, value string) error {
	switch field {
	case "method":
		in.Method = strings.ToUpper(value)
	case "endpoint":
		in.Endpoint = value
	case "description":
		in.Description = value
	case "fields":
		in.Fields = splitList(value)
	case "required":
		in.RequiredFields = splitList(value)
	case "searchable":
		in.SearchableFields = splitList(value)
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// checkRegistry applies the same rules the pipeline applies when loading
// the file, so a saved registry always loads.
func checkRegistry(reg *registry.IntentRegistry) error {
	data, err := json.Marshal(reg)
	if err != nil {
		return err
	}
	if _, err := registry.ParseRegistry(data); err != nil {
		return err
	}
	_, err = catalog.FromRegistry(reg)
	return err
}

func saveRegistry(path string, reg *registry.IntentRegistry) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return registry.SaveRegistry(path, reg)
}
