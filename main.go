package main

import (
	"os"

	"github.com/queryforge/queryforge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
