package main

import (
	"os"

	"github.com/genbu-cloud/genbu/cmd/genbu/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}
