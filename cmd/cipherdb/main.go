package main

import (
	"os"

	"cipherdb/cmd/cipherdb/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
