package main

import (
	"os"

	"github.com/xupit3r/psinterop/cmd/psinterop/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
