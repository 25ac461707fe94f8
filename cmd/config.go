package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := map[string]any{
			"model":           viper.GetString("model"),
			"base_url":        viper.GetString("base_url"),
			"max_retries":     viper.GetInt("max_retries"),
			"validation_mode": viper.GetString("validation_mode"),
			"store_behavior":  viper.GetString("store_behavior"),
			"compat_dir":      viper.GetString("compat_dir"),
			"log_requests":    viper.GetBool("log_requests"),
		}
		out, err := yaml.Marshal(settings)
		if err != nil {
			return err
		}
		if file := viper.ConfigFileUsed(); file != "" {
			fmt.Println(styles().Muted.Render("# " + file))
		}
		fmt.Print(string(out))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(configDir(), "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
		defaults := map[string]any{
			"model":           "gpt-5.2-codex",
			"max_retries":     2,
			"validation_mode": "warn",
			"store_behavior":  "auto_disable",
			"log_requests":    true,
		}
		out, err := yaml.Marshal(defaults)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return err
		}
		fmt.Println(styles().Success.Render("Wrote ") + path)
		return nil
	},
}
