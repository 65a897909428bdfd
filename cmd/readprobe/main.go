package main

import (
	"fmt"
	"os"

	"github.com/cloudstate/readprobe/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "readprobe:", err)
		os.Exit(1)
	}
}
