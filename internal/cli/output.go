package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/dukerupert/eventdesk/internal/model"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func printEvents(w io.Writer, events []model.Event) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tNAME\tTYPE\tLOCATION\tSTATUS")
	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s-%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Date, e.StartTime, e.EndTime, e.Name, e.Type, e.Location, e.Status)
	}
	return tw.Flush()
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
