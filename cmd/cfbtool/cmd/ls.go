package cmd

import (
	"fmt"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"github.com/oleio/cfb"
)

// entryRow is the CSV projection of a directory entry; field order
// doubles as column order.
type entryRow struct {
	Path     string `csv:"path"`
	Kind     string `csv:"kind"`
	Size     uint64 `csv:"size"`
	Created  string `csv:"created"`
	Modified string `csv:"modified"`
}

func DefineLsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls <file>",
		Short: "list the entries in a compound document",
		Args:  cobra.ExactArgs(1),
		RunE:  runLs,
	}
	cmd.Flags().Bool("csv", false, "emit a CSV table instead of a plain listing")
	cmd.Flags().BoolP("long", "l", false, "include size and timestamps")
	return cmd
}

func runLs(cmd *cobra.Command, args []string) error {
	r, err := cfb.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	asCSV, _ := cmd.Flags().GetBool("csv")
	long, _ := cmd.Flags().GetBool("long")

	var rows []entryRow
	walkEntries(r.Root(), func(e *cfb.Entity) {
		rows = append(rows, entryRow{
			Path:     e.Path(),
			Kind:     kindName(e.Kind()),
			Size:     e.Size(),
			Created:  formatTime(e.Created()),
			Modified: formatTime(e.Modified()),
		})
	})

	if asCSV {
		out, err := gocsv.MarshalString(&rows)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	}

	for _, row := range rows {
		if long {
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s %10d  %-25s  %-25s  %s\n", row.Kind, row.Size, row.Created, row.Modified, row.Path)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), row.Path)
		}
	}
	return nil
}

func walkEntries(e *cfb.Entity, visit func(*cfb.Entity)) {
	for _, c := range e.Children() {
		visit(c)
		if c.IsDir() {
			walkEntries(c, visit)
		}
	}
}

func kindName(k cfb.Kind) string {
	switch k {
	case cfb.KindStorage, cfb.KindRoot:
		return "storage"
	case cfb.KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02T15:04:05Z07:00")
}
