package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oleio/cfb"
	"github.com/oleio/cfb/internal/fusefs"
)

func DefineMountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mount <file> <mountpoint>",
		Short: "mount a compound document read-only via FUSE (Linux only)",
		Args:  cobra.ExactArgs(2),
		RunE:  runMount,
	}
}

func runMount(cmd *cobra.Command, args []string) error {
	r, err := cfb.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()
	return fusefs.Mount(args[1], r)
}
