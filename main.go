package main

import (
	"os"

	"github.com/mkarlsen/tesla2mqtt/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
