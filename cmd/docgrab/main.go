package main

import (
	"os"

	"github.com/docgrab/docgrab/cmd/docgrab/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
