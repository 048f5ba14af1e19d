package main

import (
	"os"

	"github.com/defi-copilot/copilotd/internal/app"
)

func main() {
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
