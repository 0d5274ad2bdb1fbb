package main

import (
	"os"
	_ "time/tzdata"

	"github.com/harun/feedbackbot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
