package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/eventdesk/internal/catalog"
	"github.com/dukerupert/eventdesk/internal/model"
)

// lists maps --list values onto the event list operations of the client.
func (a *app) lists() map[string]func(context.Context) ([]model.Event, error) {
	return map[string]func(context.Context) ([]model.Event, error){
		"all":         a.client.ListEvents,
		"hosted":      a.client.ListHosted,
		"volunteered": a.client.ListVolunteered,
		"attending":   a.client.ListAttending,
		"attended":    a.client.ListAttended,
	}
}

func newEventsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List events, filtered and sorted by date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			list, _ := f.GetString("list")
			search, _ := f.GetString("search")
			typ, _ := f.GetString("type")
			location, _ := f.GetString("location")
			when, _ := f.GetString("when")
			facets, _ := f.GetBool("facets")

			fetch, ok := a.lists()[list]
			if !ok {
				return fmt.Errorf("unknown --list %q", list)
			}
			bucket, err := catalog.ParseDateBucket(when)
			if err != nil {
				return err
			}

			ctx, done, err := a.begin(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			events, err := fetch(ctx)
			if err != nil {
				return err
			}

			if facets {
				types, locations := catalog.Facets(events)
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "types: %s\n", strings.Join(types, ", "))
				fmt.Fprintf(out, "locations: %s\n", strings.Join(locations, ", "))
				return nil
			}

			shown := catalog.Filter(events, time.Now(), catalog.Criteria{
				Search:   search,
				Type:     typ,
				Location: location,
				When:     bucket,
			})
			return printEvents(cmd.OutOrStdout(), shown)
		},
	}
	f := cmd.Flags()
	f.String("list", "all", "Which list: all|hosted|volunteered|attending|attended")
	f.String("search", "", "Case-insensitive match on name or description")
	f.String("type", "", "Exact event type, or all")
	f.String("location", "", "Exact location, or all")
	f.String("when", "all", "Date bucket: all|upcoming|today|week|month|past")
	f.Bool("facets", false, "Print the available types and locations instead of events")
	return cmd
}

func newEventCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "event", Short: "Single event operations"}
	cmd.AddCommand(
		newEventShowCommand(a),
		newEventCreateCommand(a),
		newEventDeleteCommand(a),
	)
	return cmd
}

func newEventShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show EVENT",
		Short: "Show event details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, done, err := a.begin(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			e, err := a.client.EventDetails(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), e)
		},
	}
}

func newEventCreateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit an event for approval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := eventInputFromFlags(cmd)
			if err != nil {
				return err
			}
			ctx, done, err := a.begin(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			e, err := a.client.CreateEvent(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "event %d submitted (%s)\n", e.ID, e.Status)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("name", "", "Event name")
	f.String("description", "", "Description")
	f.String("date", "", "Date (YYYY-MM-DD)")
	f.String("start", "", "Start time (HH:mm:ss)")
	f.String("end", "", "End time (HH:mm:ss)")
	f.Int64("venue", 0, "Venue id")
	f.String("type", "", "Event type")
	f.String("location", "", "Location (defaults to the venue's)")
	return cmd
}

func eventInputFromFlags(cmd *cobra.Command) (model.EventInput, error) {
	f := cmd.Flags()
	var in model.EventInput
	in.Name, _ = f.GetString("name")
	in.Description, _ = f.GetString("description")
	in.Type, _ = f.GetString("type")
	in.Location, _ = f.GetString("location")

	date, _ := f.GetString("date")
	start, _ := f.GetString("start")
	end, _ := f.GetString("end")
	var err error
	if in.Date, err = model.ParseDate(date); err != nil {
		return in, fmt.Errorf("--date: %w", err)
	}
	if in.StartTime, err = model.ParseTimeOfDay(start); err != nil {
		return in, fmt.Errorf("--start: %w", err)
	}
	if in.EndTime, err = model.ParseTimeOfDay(end); err != nil {
		return in, fmt.Errorf("--end: %w", err)
	}
	if venue, _ := f.GetInt64("venue"); venue > 0 {
		in.VenueID = &venue
	}
	return in, nil
}

func newEventDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete EVENT",
		Short: "Delete an event you host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, done, err := a.begin(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			return a.client.DeleteEvent(ctx, id)
		},
	}
}
