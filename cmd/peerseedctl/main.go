package main

import (
	"log"

	"github.com/spf13/cobra"

	peerseedcli "github.com/amirimatin/go-peerseed/pkg/cli"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "peerseedctl",
		Short:         "go-peerseed management CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// Attach all seeder commands from pkg/cli for reuse in services
	peerseedcli.AddAll(root)
	return root
}
