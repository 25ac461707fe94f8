package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/samsaffron/oauth-codex/codex"
)

var askInstructions string

func init() {
	askCmd.Flags().StringVar(&askInstructions, "instructions", "", "Override the system instructions")
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question and stream the answer",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		if question == "" {
			// Allow piping the question on stdin.
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			question = strings.TrimSpace(string(data))
		}
		if question == "" {
			return fmt.Errorf("nothing to ask")
		}

		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		stream, err := client.Stream(cmd.Context(), codex.Request{
			Model:        viper.GetString("model"),
			Instructions: askInstructions,
			Messages:     []codex.Message{codex.UserText(question)},
		})
		if err != nil {
			return err
		}
		defer stream.Close()

		for {
			event, err := stream.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			switch event.Type {
			case codex.EventTextDelta:
				fmt.Print(event.Text)
			case codex.EventError:
				return event.Err
			case codex.EventDone:
				fmt.Println()
			}
		}
		return nil
	},
}
