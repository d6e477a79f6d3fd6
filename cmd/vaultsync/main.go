package main

import (
	"os"

	"github.com/bianoble/vaultsync/cmd/vaultsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
