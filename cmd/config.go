package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  "Prints the merged configuration (defaults, config file, environment) as YAML. API keys are redacted.",
	RunE: func(_ *cobra.Command, _ []string) error {
		redacted := *cfg
		redacted.RapidAPI.Key = redactKey(redacted.RapidAPI.Key)
		redacted.Apify.Key = redactKey(redacted.Apify.Key)

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close() //nolint:errcheck
		return eris.Wrap(enc.Encode(redacted), "config: encode yaml")
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// redactKey keeps a short prefix so the operator can tell which key is
// loaded without exposing it.
func redactKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 6 {
		return "****"
	}
	return key[:4] + "****"
}
