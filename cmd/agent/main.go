package main

import (
	"os"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
