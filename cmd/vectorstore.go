package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samsaffron/oauth-codex/compat"
)

var (
	vsCreateName      string
	vsSearchMaxResult int
)

func init() {
	vsCreateCmd.Flags().StringVar(&vsCreateName, "name", "", "Name of the vector store")
	vsSearchCmd.Flags().IntVar(&vsSearchMaxResult, "max-results", 10, "Maximum results to return")
	vectorStoreCmd.AddCommand(vsCreateCmd)
	vectorStoreCmd.AddCommand(vsListCmd)
	vectorStoreCmd.AddCommand(vsSearchCmd)
	vectorStoreCmd.AddCommand(vsDeleteCmd)
	rootCmd.AddCommand(vectorStoreCmd)
}

var vectorStoreCmd = &cobra.Command{
	Use:     "vector-store",
	Aliases: []string{"vs"},
	Short:   "Manage vector stores in the local compat store",
}

var vsCreateCmd = &cobra.Command{
	Use:   "create <file-id>...",
	Short: "Create a vector store over stored files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		vs, err := client.Compat().CreateVectorStore(vsCreateName, args)
		if err != nil {
			return err
		}
		fmt.Println(vs.ID)
		return nil
	},
}

var vsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vector stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		stores, err := client.Compat().ListVectorStores()
		if err != nil {
			return err
		}
		s := styles()
		for _, vs := range stores {
			name := vs.Name
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Printf("%s  %s  %s\n",
				s.Highlighted.Render(vs.ID),
				s.Muted.Render(fmt.Sprintf("%d files, %d bytes", vs.FileCounts.Total, vs.UsageBytes)),
				name)
		}
		return nil
	},
}

var vsSearchCmd = &cobra.Command{
	Use:   "search <vector-store-id> <query>",
	Short: "Search a vector store by token overlap",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		page, err := client.Compat().SearchVectorStore(args[0], args[1], vsSearchMaxResult)
		if err != nil {
			return err
		}
		s := styles()
		if len(page.Data) == 0 {
			fmt.Println(s.Muted.Render("No matches."))
			return nil
		}
		for _, result := range page.Data {
			fmt.Printf("%s  %s  %s\n",
				s.Highlighted.Render(result.FileID),
				s.Muted.Render(fmt.Sprintf("score %.2f", result.Score)),
				result.Filename)
		}
		if page.HasMore {
			fmt.Println(s.Muted.Render("(more results truncated)"))
		}
		return nil
	},
}

var vsDeleteCmd = &cobra.Command{
	Use:   "delete <vector-store-id>",
	Short: "Delete a vector store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := client.Compat().DeleteVectorStore(args[0]); err != nil {
			var notFound *compat.NotFoundError
			if errors.As(err, &notFound) {
				return fmt.Errorf("no such vector store: %s", args[0])
			}
			return err
		}
		fmt.Println(styles().Success.Render("Deleted."))
		return nil
	},
}
