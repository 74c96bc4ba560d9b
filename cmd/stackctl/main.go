// stackctl is the operator command line for the stackgate API. It signs
// requests with the credentials from ~/.stackgate/config.json and talks to
// the gateway the same way any CloudFormation-compatible client would.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackgate/stackgate/cmd/stackctl/cli"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "stackctl",
		Short:        "stackctl — command line client for the stackgate API",
		Version:      version,
		SilenceUsage: true,
	}

	cli.RegisterConfigureCommands(rootCmd)
	cli.RegisterStackCommands(rootCmd)
	cli.RegisterEventCommands(rootCmd)
	cli.RegisterResourceCommands(rootCmd)
	cli.RegisterCallCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
