package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(tokensCmd)
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available to your account",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		models, err := client.Models(cmd.Context())
		if err != nil {
			return err
		}
		s := styles()
		for _, model := range models {
			fmt.Println(s.Highlighted.Render(model.ID))
		}
		return nil
	},
}

var tokensCmd = &cobra.Command{
	Use:   "tokens [text]",
	Short: "Count the input tokens a prompt would consume",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		return countTokens(cmd, client, args)
	},
}
