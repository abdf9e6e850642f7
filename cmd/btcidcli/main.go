package main

import (
	"os"

	"github.com/lightninglabs/btcid/cmd/commands"
)

func main() {
	// Set up the main CLI app.
	app := commands.NewApp()
	if err := app.Run(os.Args); err != nil {
		commands.Fatal(err)
	}
}
