package main

import "github.com/samsaffron/oauth-codex/cmd"

func main() {
	cmd.Execute()
}
