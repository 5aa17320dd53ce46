package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/oleio/cfb"
)

func DefineCatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <file> <stream-path>",
		Short: "print a stream's bytes to stdout",
		Args:  cobra.ExactArgs(2),
		RunE:  runCat,
	}
}

func runCat(cmd *cobra.Command, args []string) error {
	r, err := cfb.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	s, err := r.OpenPath(args[1])
	if err != nil {
		return err
	}
	_, err = io.Copy(os.Stdout, s)
	return err
}
