package main

import (
	"os"

	"github.com/gobeaver/panefs/cmd/panefs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
