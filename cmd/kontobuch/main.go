package main

import (
	"os"

	"github.com/maltewinckler/kontobuch/cmd/kontobuch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
