package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/eventdesk/internal/approval"
	"github.com/dukerupert/eventdesk/internal/attendance"
	"github.com/dukerupert/eventdesk/internal/model"
)

func (a *app) approval() *approval.Coordinator {
	return approval.New(a.client,
		approval.WithLogger(a.logger),
		approval.WithMetrics(a.metrics),
		approval.WithFanoutLimit(a.cfg.FanoutLimit),
	)
}

func (a *app) attendance() *attendance.Coordinator {
	return attendance.New(a.client,
		attendance.WithLogger(a.logger),
		attendance.WithMetrics(a.metrics),
		attendance.WithFanoutLimit(a.cfg.FanoutLimit),
	)
}

func newPendingCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List events awaiting approval with their availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, done, err := a.begin(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			pending, err := a.approval().LoadPending(ctx)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tDATE\tTIME\tNAME\tLOCATION\tAVAILABILITY")
			for _, p := range pending {
				avail := p.Availability.String()
				if p.CheckErr != nil {
					avail += " (check failed)"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s-%s\t%s\t%s\t%s\n",
					p.ID, p.Date, p.StartTime, p.EndTime, p.Name, p.Location, avail)
			}
			return tw.Flush()
		},
	}
}

// newDecideCommand builds "approve" or "reject".
func newDecideCommand(a *app, verb string) *cobra.Command {
	outcome := model.StatusConfirmed
	if verb == "reject" {
		outcome = model.StatusRejected
	}
	return &cobra.Command{
		Use:   verb + " EVENT...",
		Short: fmt.Sprintf("Move pending events to %s", outcome),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			ctx, done, err := a.begin(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			coord := a.approval()
			if _, err := coord.LoadPending(ctx); err != nil {
				return err
			}
			var errs []error
			for _, id := range ids {
				if err := coord.Decide(ctx, id, outcome); err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "event %d %s\n", id, outcome)
			}
			return errors.Join(errs...)
		},
	}
}

func newRegisterCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register EVENT",
		Short: "Register for an event as participant or volunteer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			kind := model.KindParticipant
			if v, _ := cmd.Flags().GetBool("volunteer"); v {
				kind = model.KindVolunteer
			}

			ctx, done, err := a.begin(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			ident, _ := a.mgr.Current()
			if err := a.attendance().Register(ctx, id, ident.UserID, kind); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered for event %d as %s\n", id, kind)
			return nil
		},
	}
	cmd.Flags().Bool("volunteer", false, "Register as a volunteer")
	return cmd
}

func newAttendCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "attend EVENT [USER...]",
		Short: "Mark attendance; without users marks your own",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID(args[0])
			if err != nil {
				return err
			}
			users, err := parseIDs(args[1:])
			if err != nil {
				return err
			}

			ctx, done, err := a.begin(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			coord := a.attendance()
			out := cmd.OutOrStdout()
			if len(users) == 0 {
				m, err := coord.MarkOwnAttendance(ctx, eventID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "user %d: %s\n", m.UserID, describeMark(m))
				return nil
			}

			var errs []error
			for _, r := range coord.MarkAttendanceForAll(ctx, eventID, users) {
				if r.Err != nil {
					fmt.Fprintf(out, "user %d: failed: %v\n", r.UserID, r.Err)
					errs = append(errs, r.Err)
					continue
				}
				fmt.Fprintf(out, "user %d: %s\n", r.UserID, describeMark(r.Mark))
			}
			return errors.Join(errs...)
		},
	}
}

func describeMark(m attendance.Mark) string {
	if m.Suppressed {
		return "already marked"
	}
	return "marked (" + string(m.Path) + ")"
}

func newRosterCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster EVENT",
		Short: "List an event's participants",
		Long: `Lists the participants of an event. With --mark the given users are
marked as attended first; the ATTENDED column shows marks made in this run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			mark, _ := cmd.Flags().GetInt64Slice("mark")

			ctx, done, err := a.begin(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			coord := a.attendance()
			var errs []error
			for _, r := range coord.MarkAttendanceForAll(ctx, id, mark) {
				if r.Err != nil {
					errs = append(errs, r.Err)
				}
			}

			roster, err := coord.Roster(ctx, id)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tATTENDED")
			for _, p := range roster {
				attended := "no"
				if p.Attended {
					attended = "yes"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.ID, p.Name, p.Email, attended)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().Int64Slice("mark", nil, "Mark these user ids as attended before listing")
	return cmd
}

func newVenuesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "venues",
		Short: "List venues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, done, err := a.begin(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			venues, err := a.client.ListVenues(ctx)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tLOCATION\tCAPACITY")
			for _, v := range venues {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", v.ID, v.Name, v.Location, v.Capacity)
			}
			return tw.Flush()
		},
	}
}
