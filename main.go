package main

import (
	"os"

	"github.com/almamatch/almamatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
