package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the effective configuration in YAML format, after merging
defaults, the config file, environment variables, and flags. Credential
values are redacted.

Redirect the output to a file to create a configuration template:

  nimbus config show > config.yaml

Environment variables use the NIMBUS_ prefix and underscores for nesting.
Example: server.port -> NIMBUS_SERVER_PORT`,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

// toMap converts a config struct to a map keyed by mapstructure tags,
// formatting durations for readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch fv := field.Interface().(type) {
		case time.Duration:
			result[key] = fv.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfgMap := toMap(cfg)

	// Inline credentials never reach stdout.
	if authMap, ok := cfgMap["auth"].(map[string]any); ok {
		if token, ok := authMap["token"].(string); ok && token != "" {
			authMap["token"] = "[REDACTED]"
		}
	}

	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "# nimbus configuration")
	fmt.Fprintln(cmd.OutOrStdout(), "#")
	fmt.Fprintln(cmd.OutOrStdout(), "# All values reflect the effective configuration.")
	fmt.Fprintln(cmd.OutOrStdout(), "# Environment variable overrides use the NIMBUS_ prefix:")
	fmt.Fprintln(cmd.OutOrStdout(), "#   NIMBUS_SERVER_HOST, NIMBUS_SERVER_PORT")
	fmt.Fprintln(cmd.OutOrStdout(), "#   NIMBUS_SERVICE_BASE_URL, NIMBUS_AUTH_TOKEN")
	fmt.Fprintln(cmd.OutOrStdout(), "#   NIMBUS_LOGGING_LEVEL, NIMBUS_LOGGING_FORMAT")
	fmt.Fprintln(cmd.OutOrStdout(), "#")
	fmt.Fprintln(cmd.OutOrStdout(), "")
	fmt.Fprint(cmd.OutOrStdout(), string(yamlData))
	return nil
}
