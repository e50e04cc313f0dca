package main

import (
	"fmt"
	"os"

	"github.com/fmueller/transkribera/internal/cli"
)

func main() {
	if err := cli.NewWebCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
