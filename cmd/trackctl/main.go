package main

import (
	"os"

	"github.com/attaboy/tracking/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
