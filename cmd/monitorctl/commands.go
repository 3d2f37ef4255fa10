package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/auth"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/monitor"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/quota"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/search"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/storage"
)

type options struct {
	dbPath  string
	verbose bool
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "monitorctl",
		Short:         "Administer the brand monitoring backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", envOrDefault("DATABASE_PATH", "./data/monitor.db"), "path to sqlite database")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newCreateAdminCmd(opts),
		newStatusCmd(opts),
		newPurgeCmd(opts),
		newRunCmd(opts),
		newTokenCmd(),
	)
	return root
}

func (o *options) logger(w io.Writer) *slog.Logger {
	lvl := slog.LevelWarn
	if o.verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func (o *options) open() (*storage.SQLite, error) {
	store, err := storage.NewSQLite(o.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", o.dbPath, err)
	}
	return store, nil
}

func newCreateAdminCmd(opts *options) *cobra.Command {
	var (
		secret string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create-admin <email>",
		Short: "Register an administrator and print a bootstrap token when a secret is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.open()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			u := &model.User{Email: args[0], Role: model.RoleAdmin}
			if err := store.CreateUser(cmd.Context(), u); err != nil {
				if errors.Is(err, storage.ErrConflict) {
					return fmt.Errorf("user %s already exists", u.Email)
				}
				return err
			}
			cmd.Printf("created admin %s (%s)\n", u.Email, u.ID)
			if secret == "" {
				return nil
			}
			tok, err := signToken(secret, auth.Identity{UserID: u.ID, Email: u.Email, Role: u.Role}, ttl)
			if err != nil {
				return err
			}
			cmd.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("AUTH_JWT_SECRET"), "HMAC signing secret for the bootstrap token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "bootstrap token lifetime")
	return cmd
}

func signToken(secret string, id auth.Identity, ttl time.Duration) (string, error) {
	signer, err := auth.NewSigner([]byte(secret), os.Getenv("AUTH_JWT_ISSUER"), os.Getenv("AUTH_JWT_AUDIENCE"))
	if err != nil {
		return "", err
	}
	tok, err := signer.Sign(id, ttl)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tok, nil
}

type statusOutput struct {
	System     *model.SystemStatus    `json:"system"`
	Historical model.HistoricalStatus `json:"historical"`
	Quota      model.QuotaRecord      `json:"quota"`
}

func newStatusCmd(opts *options) *cobra.Command {
	var maxDaily int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running flag, historical progress and today's quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := opts.open()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			log := opts.logger(cmd.ErrOrStderr())
			ledger := quota.New(store, maxDaily, quotaLocation())
			svc := monitor.NewService(store, monitor.NewCollector(store, nil, ledger, log), log)

			ctx := cmd.Context()
			var out statusOutput
			if out.System, err = svc.Status(ctx); err != nil {
				return err
			}
			if out.Historical, err = svc.HistoricalStatus(ctx); err != nil {
				return err
			}
			if out.Quota, err = ledger.Snapshot(ctx); err != nil {
				return err
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("encode status: %w", err)
			}
			cmd.Println(string(data))
			return nil
		},
	}
	cmd.Flags().IntVar(&maxDaily, "max-daily", 100, "daily request budget")
	return cmd
}

func newPurgeCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete all runs, results, request logs and quotas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to purge without --yes")
			}
			store, err := opts.open()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			n, err := store.PurgeMonitorData(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("deleted %d records\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	return cmd
}

func newRunCmd(opts *options) *cobra.Command {
	var (
		apiKey   string
		engineID string
		maxDaily int
		rps      float64
	)
	cmd := &cobra.Command{
		Use:       "run <full|relevant|historical|continuous>",
		Short:     "Run a collection task in the foreground",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"full", "relevant", "historical", "continuous"},
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := monitor.ParseTask(args[0])
			if err != nil {
				return err
			}
			store, err := opts.open()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			client, err := search.New(ctx, apiKey, engineID, search.WithRateLimit(rps))
			if err != nil {
				return fmt.Errorf("create search client: %w", err)
			}
			log := opts.logger(cmd.ErrOrStderr())
			ledger := quota.New(store, maxDaily, quotaLocation())
			svc := monitor.NewService(store, monitor.NewCollector(store, client, ledger, log), log)

			report, err := svc.Run(ctx, task)
			cmd.Println(report.Summary())
			return err
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("GOOGLE_API_KEY"), "Google API key")
	cmd.Flags().StringVar(&engineID, "cse-id", os.Getenv("GOOGLE_CSE_ID"), "custom search engine ID")
	cmd.Flags().IntVar(&maxDaily, "max-daily", 100, "daily request budget")
	cmd.Flags().Float64Var(&rps, "rate", 2, "search requests per second")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		secret string
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <email>",
		Short: "Sign an HS256 API token for local use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := model.ParseRole(role)
			if err != nil {
				return err
			}
			if userID == "" {
				userID = args[0]
			}
			tok, err := signToken(secret, auth.Identity{UserID: userID, Email: args[0], Role: r}, ttl)
			if err != nil {
				return err
			}
			cmd.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("AUTH_JWT_SECRET"), "HMAC signing secret")
	cmd.Flags().StringVar(&userID, "uid", "", "subject of the token (defaults to the email)")
	cmd.Flags().StringVar(&role, "role", "OPERATOR", "ADMIN or OPERATOR")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func quotaLocation() *time.Location {
	loc, err := time.LoadLocation(envOrDefault("QUOTA_TIMEZONE", "America/Los_Angeles"))
	if err != nil {
		return time.UTC
	}
	return loc
}
