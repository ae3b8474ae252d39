package main

import (
    "fmt"
    "os"

    "github.com/spf13/cobra"

    meshcli "github.com/amirimatin/go-mesh/pkg/cli"
)

func main() {
    if err := newRoot().Execute(); err != nil {
        fmt.Fprintln(os.Stderr, err)
        os.Exit(1)
    }
}

func newRoot() *cobra.Command {
    root := &cobra.Command{
        Use:           "meshctl",
        Short:         "go-mesh node and management CLI",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    meshcli.AddAll(root)
    return root
}
