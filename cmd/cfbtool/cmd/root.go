package cmd

import (
	"github.com/spf13/cobra"
)

const AppName = "cfbtool"

func Execute() error {
	rootCmd := &cobra.Command{
		Use:   AppName,
		Short: AppName + " - inspect and extract OLE compound documents",
	}

	rootCmd.AddCommand(DefineLsCommand())
	rootCmd.AddCommand(DefineCatCommand())
	rootCmd.AddCommand(DefinePropsCommand())
	rootCmd.AddCommand(DefineMountCommand())

	return rootCmd.Execute()
}
