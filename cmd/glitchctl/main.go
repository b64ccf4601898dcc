// Command glitchctl drives voltage glitch campaigns against a target device.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/glitchctl/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
