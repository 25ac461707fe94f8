package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with your ChatGPT account",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		s := styles()
		err = client.Login(cmd.Context(), func(url string) error {
			fmt.Println("Opening browser for login. If nothing happens, visit:")
			fmt.Println()
			fmt.Println("  " + s.Highlighted.Render(url))
			fmt.Println()
			openBrowser(url)
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Println(s.Success.Render("Logged in."))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cleanup, err := newClient()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := client.Logout(); err != nil {
			return err
		}
		fmt.Println(styles().Success.Render("Logged out."))
		return nil
	},
}

// openBrowser starts the platform browser, best-effort.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	_ = cmd.Start()
}
