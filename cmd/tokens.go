package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/samsaffron/oauth-codex/codex"
)

func countTokens(cmd *cobra.Command, client *codex.Client, args []string) error {
	count, err := client.CountTokens(cmd.Context(), codex.Request{
		Model:    viper.GetString("model"),
		Messages: []codex.Message{codex.UserText(strings.Join(args, " "))},
	})
	if err != nil {
		return err
	}
	fmt.Printf("%d input tokens\n", count.InputTokens)
	return nil
}
