package main

import (
	"os"

	"github.com/netbirdio/updateengine/client/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
