package cmd

import (
	"fmt"

	"github.com/richardlehane/msoleps"
	"github.com/spf13/cobra"

	"github.com/oleio/cfb"
)

// summaryInformationStream is the well-known name OLE-based formats give
// their standard property-set stream.
const summaryInformationStream = "\x05SummaryInformation"

func DefinePropsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "props <file>",
		Short: "dump the document's SummaryInformation property set",
		Args:  cobra.ExactArgs(1),
		RunE:  runProps,
	}
}

func runProps(cmd *cobra.Command, args []string) error {
	r, err := cfb.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	s, err := r.OpenPath(summaryInformationStream)
	if err != nil {
		return fmt.Errorf("no %s stream: %w", summaryInformationStream, err)
	}

	doc := msoleps.New()
	if err := doc.Reset(s); err != nil {
		return err
	}

	for _, p := range doc.Property {
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", p.Name, p.String())
	}
	return nil
}
