// Package cli contains the cobra command tree of the eventdesk client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dukerupert/eventdesk/internal/api"
	"github.com/dukerupert/eventdesk/internal/config"
	"github.com/dukerupert/eventdesk/internal/logging"
	"github.com/dukerupert/eventdesk/internal/metrics"
	"github.com/dukerupert/eventdesk/internal/model"
	"github.com/dukerupert/eventdesk/internal/session"
)

var errNotSignedIn = errors.New("not signed in: run `eventdesk login` and export EVENTDESK_TOKEN")

// app carries what every subcommand needs once flags are resolved.
type app struct {
	cfg    config.Client
	logger *slog.Logger
	client *api.Client
	mgr    *session.Manager

	// Set only when --metrics-file is given.
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	metricsFile string
}

// NewRoot constructs the eventdesk root command. Environment variables give
// the defaults; persistent flags override them.
func NewRoot() *cobra.Command {
	a := &app{mgr: session.NewManager()}
	env := config.LoadClient()

	root := &cobra.Command{
		Use:           "eventdesk",
		Short:         "Browse, approve and track events",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd, env)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.writeMetrics()
		},
	}

	f := root.PersistentFlags()
	f.String("base-url", env.BaseURL, "Event service base URL (EVENTDESK_BASE_URL)")
	f.String("token", env.Token, "Bearer token (EVENTDESK_TOKEN)")
	f.Duration("timeout", env.Timeout, "Per-request timeout (EVENTDESK_TIMEOUT)")
	f.Int("fanout", env.FanoutLimit, "Concurrent requests for fan-out operations (EVENTDESK_FANOUT_LIMIT)")
	f.String("log-level", env.LogLevel, "Log level: debug|info|warn|error (EVENTDESK_LOG_LEVEL)")
	f.String("log-format", env.LogFormat, "Log format: text|json (EVENTDESK_LOG_FORMAT)")
	f.String("metrics-file", "", "Write client metrics in Prometheus text format to this file after the command")

	root.AddCommand(
		newLoginCommand(a),
		newWhoamiCommand(a),
		newEventsCommand(a),
		newEventCommand(a),
		newPendingCommand(a),
		newDecideCommand(a, "approve"),
		newDecideCommand(a, "reject"),
		newRegisterCommand(a),
		newAttendCommand(a),
		newRosterCommand(a),
		newVenuesCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, env config.Client) error {
	f := cmd.Flags()
	a.cfg = env
	a.cfg.BaseURL, _ = f.GetString("base-url")
	a.cfg.Token, _ = f.GetString("token")
	a.cfg.Timeout, _ = f.GetDuration("timeout")
	a.cfg.FanoutLimit, _ = f.GetInt("fanout")
	a.cfg.LogLevel, _ = f.GetString("log-level")
	a.cfg.LogFormat, _ = f.GetString("log-format")

	if a.cfg.Timeout <= 0 {
		a.cfg.Timeout = 10 * time.Second
	}
	a.logger = logging.New(cmd.ErrOrStderr(), a.cfg.LogLevel, a.cfg.LogFormat)

	a.metricsFile, _ = f.GetString("metrics-file")
	if a.metricsFile != "" {
		a.registry = prometheus.NewRegistry()
		a.metrics = metrics.New(a.registry)
	}

	a.client = api.NewClient(a.cfg.BaseURL,
		api.WithTimeout(a.cfg.Timeout),
		api.WithLogger(a.logger),
		api.WithMetrics(a.metrics),
	)
	return nil
}

// writeMetrics dumps what the command recorded. It only runs after a
// successful command.
func (a *app) writeMetrics() error {
	if a.registry == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.metricsFile, a.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	a.logger.Debug("metrics written", "path", a.metricsFile)
	return nil
}

// begin resolves the configured token into the current identity and returns
// a request context bound to it.
func (a *app) begin(parent context.Context) (context.Context, context.CancelFunc, error) {
	if _, ok := a.mgr.Current(); !ok {
		if a.cfg.Token == "" {
			return nil, nil, errNotSignedIn
		}
		ident, err := a.client.IdentityFromToken(parent, a.cfg.Token)
		if err != nil {
			if api.StatusCode(err) == 401 {
				return nil, nil, errNotSignedIn
			}
			return nil, nil, fmt.Errorf("resolve identity: %w", err)
		}
		a.mgr.Login(ident)
		a.logger.Debug("identity resolved", "user_id", ident.UserID, "role", ident.Role)
	}
	return a.mgr.Begin(parent)
}

func newLoginCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange credentials for a bearer token",
		Long: `Signs in and prints the bearer token. Export it as EVENTDESK_TOKEN
(or pass --token) for the other commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("register")
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}

			var (
				tok model.Token
				err error
			)
			if name != "" {
				tok, err = a.client.RegisterAccount(cmd.Context(), name, email, password)
			} else {
				tok, err = a.client.Login(cmd.Context(), email, password)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tok)
		},
	}
	cmd.Flags().String("email", "", "Account email")
	cmd.Flags().String("password", "", "Account password")
	cmd.Flags().String("register", "", "Create a participant account with this display name first")
	return cmd
}

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, done, err := a.begin(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			u, err := a.client.Me(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Role)
			return nil
		},
	}
}
