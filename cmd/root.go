package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/samsaffron/oauth-codex/codex"
	"github.com/samsaffron/oauth-codex/internal/ui"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "oauth-codex",
	Short: "Talk to the ChatGPT codex backend with your ChatGPT login",
	Long: `oauth-codex authenticates against the ChatGPT identity provider and
streams completions from the codex backend.

Examples:
  oauth-codex login
  oauth-codex ask "why is my goroutine leaking?"
  oauth-codex models
  oauth-codex usage --days 7`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().Bool("verbose", false, "Print request warnings and retry notices")
	rootCmd.PersistentFlags().String("model", "", "Model to use (default from config)")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir())
	viper.SetEnvPrefix("OAUTH_CODEX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("model", "gpt-5.2-codex")
	viper.SetDefault("max_retries", 2)
	viper.SetDefault("validation_mode", "warn")
	viper.SetDefault("store_behavior", "auto_disable")
	viper.SetDefault("log_requests", true)

	// Missing config file is fine, defaults apply.
	_ = viper.ReadInConfig()
}

func configDir() string {
	if cfg := os.Getenv("XDG_CONFIG_HOME"); cfg != "" {
		return filepath.Join(cfg, "oauth-codex")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "oauth-codex")
}

// newClient builds an SDK client from the effective config, with the
// request log wired through hooks when enabled.
func newClient() (*codex.Client, func(), error) {
	opts := codex.Options{
		BaseURL:        viper.GetString("base_url"),
		MaxRetries:     viper.GetInt("max_retries"),
		ValidationMode: codex.ValidationMode(viper.GetString("validation_mode")),
		StoreBehavior:  codex.StoreBehavior(viper.GetString("store_behavior")),
		CompatDir:      viper.GetString("compat_dir"),
		OpenURL: func(url string) error {
			fmt.Fprintln(os.Stderr, "Not logged in, opening browser. If nothing happens, visit:")
			fmt.Fprintln(os.Stderr, "  "+url)
			openBrowser(url)
			return nil
		},
	}
	if viper.GetBool("verbose") {
		opts.Logf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}

	cleanup := func() {}
	if viper.GetBool("log_requests") {
		hooks, closeLog, err := requestLogHooks()
		if err == nil {
			opts.Hooks = hooks
			cleanup = closeLog
		} else if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "request log unavailable: %v\n", err)
		}
	}

	client, err := codex.New(opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return client, cleanup, nil
}

func styles() *ui.Styles {
	return ui.NewStyles(os.Stdout)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		errStyles := ui.NewStyles(os.Stderr)
		fmt.Fprintln(os.Stderr, errStyles.Error.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}
