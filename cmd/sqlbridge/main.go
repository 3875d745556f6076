package main

import (
	"os"

	"github.com/abramin/sqlbridge/cmd/sqlbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
