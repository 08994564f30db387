package main

import (
	"os"

	"github.com/conneroisu/pagelet/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
