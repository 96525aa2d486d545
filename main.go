package main

import (
	"os"

	"github.com/Tanmoy095/logisynapse-fulfillment/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
