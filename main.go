package main

import (
	"os"

	"github.com/kyleking/slidefill/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
