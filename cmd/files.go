package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var fileUploadPurpose string

func init() {
	fileUploadCmd.Flags().StringVar(&fileUploadPurpose, "purpose", "assistants", "Purpose recorded with the file")
	filesCmd.AddCommand(fileUploadCmd)
	filesCmd.AddCommand(fileListCmd)
	filesCmd.AddCommand(fileCatCmd)
	filesCmd.AddCommand(fileDeleteCmd)
	rootCmd.AddCommand(filesCmd)
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage files in the local compat store",
}

var fileUploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Store a file locally and print its id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		content, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		file, err := client.Compat().CreateFile(filepath.Base(args[0]), content, fileUploadPurpose)
		if err != nil {
			return err
		}
		fmt.Println(file.ID)
		return nil
	},
}

var fileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored files",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		files, err := client.Compat().ListFiles()
		if err != nil {
			return err
		}
		s := styles()
		for _, file := range files {
			fmt.Printf("%s  %s  %s\n",
				s.Highlighted.Render(file.ID),
				s.Muted.Render(fmt.Sprintf("%6d bytes", file.Bytes)),
				file.Filename)
		}
		return nil
	},
}

var fileCatCmd = &cobra.Command{
	Use:   "cat <file-id>",
	Short: "Print the content of a stored file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		content, err := client.Compat().FileContent(args[0])
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(content)
		return err
	},
}

var fileDeleteCmd = &cobra.Command{
	Use:   "delete <file-id>",
	Short: "Remove a stored file and its content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		deleted, err := client.Compat().DeleteFile(args[0])
		if err != nil {
			return err
		}
		s := styles()
		if !deleted.Deleted {
			fmt.Println(s.Muted.Render("Nothing to delete: " + args[0]))
			return nil
		}
		fmt.Println(s.Success.Render("Deleted ") + args[0])
		return nil
	},
}
