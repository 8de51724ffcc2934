package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"erasure/internal/artifacts"
	"erasure/internal/catalog"
	"erasure/internal/config"
	"erasure/internal/db"
	"erasure/internal/engine"
	"erasure/internal/match"
	"erasure/internal/migrate"
	"erasure/internal/plan"
	"erasure/internal/ratelimit"
	"erasure/internal/repo"
	"erasure/internal/scheduler"
	"erasure/internal/server"
	"erasure/internal/tasks"
	"erasure/internal/vault"
)

var rootCmd = &cobra.Command{
	Use:   "erasure",
	Short: "Erasure CLI",
	Long: `Erasure automates personal data removal from people-search brokers.
It discovers listings for a profile, matches them against the subject's
identity, drives each broker's removal workflow with approval gates for
side effects, and re-scans on a schedule to verify removals stick.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ERASURE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(approvalCmd())
	rootCmd.AddCommand(listingCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- profile ---

func profileCmd() *cobra.Command {
	p := &cobra.Command{Use: "profile", Short: "Manage PII profiles"}
	p.AddCommand(profileCreateCmd())
	p.AddCommand(profileListCmd())
	p.AddCommand(profileUpdateCmd())
	p.AddCommand(profileDeleteCmd())
	p.AddCommand(profileStatusCmd())
	return p
}

func readProfileData(path string) (vault.ProfileData, error) {
	var data vault.ProfileData
	raw, err := os.ReadFile(path)
	if err != nil {
		return data, err
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("invalid profile JSON: %w", err)
	}
	return data, nil
}

func profileCreateCmd() *cobra.Command {
	var label, file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a profile from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readProfileData(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProfile(ctx, label, data, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				seeded := 0
				if e.Catalog != nil {
					if seeded, err = scheduler.New(e, nil).InitializeForProfile(ctx, p.ProfileID); err != nil {
						return err
					}
				}
				return printJSONOrTable(map[string]any{
					"profile_id":       p.ProfileID,
					"label":            p.Label,
					"data_hash":        p.DataHash,
					"schedules_seeded": seeded,
				})
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "default", "profile label")
	cmd.Flags().StringVar(&file, "file", "", "path to profile JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func profileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProfiles(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "LABEL", "DATA HASH", "UPDATED")
				for _, p := range items {
					t.AppendRow(table.Row{p.ProfileID, p.Label, short(p.DataHash), p.UpdatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
}

func profileUpdateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "update <profile-id>",
		Short: "Replace profile data from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readProfileData(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, changed, err := e.UpdateProfile(ctx, args[0], data, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"profile_id": p.ProfileID,
					"data_hash":  p.DataHash,
					"changed":    changed,
				})
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to profile JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func profileDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <profile-id>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteProfile(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func profileStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <profile-id>",
		Short: "Listing counts for a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.Repo.CountListingsByStatus(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"profile_id":     args[0],
					"listing_counts": counts,
				})
			})
		},
	}
}

// --- run ---

func runCmd() *cobra.Command {
	r := &cobra.Command{Use: "run", Short: "Manage runs"}
	r.AddCommand(runStartCmd())
	r.AddCommand(runListCmd())
	r.AddCommand(runShowCmd())
	return r
}

func runStartCmd() *cobra.Command {
	var planID, paramsJSON, idemKey string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]any{}
			if paramsJSON != "" {
				if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
					return fmt.Errorf("invalid --params: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				run, created, err := e.StartRun(ctx, engine.StartRunOptions{
					PlanID:         planID,
					Params:         params,
					RequestedBy:    viper.GetString("actor-id"),
					IdempotencyKey: idemKey,
					ActorID:        viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"run_id":  run.RunID,
					"status":  run.Status,
					"created": created,
				})
			})
		},
	}
	cmd.Flags().StringVar(&planID, "plan", "", "plan id")
	cmd.Flags().StringVar(&paramsJSON, "params", "", "run params JSON")
	cmd.Flags().StringVar(&idemKey, "idempotency-key", "", "idempotency key")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func runListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				runs, err := e.Repo.ListRuns(ctx, repo.RunFilters{Status: status, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(runs)
				}
				t := newTable("ID", "PLAN", "STATUS", "CREATED", "ERROR")
				for _, r := range runs {
					errCode := ""
					if r.ErrorCode != nil {
						errCode = *r.ErrorCode
					}
					t.AppendRow(table.Row{short(r.RunID), r.PlanID, r.Status, r.CreatedAt, errCode})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func runShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Run detail with tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				run, err := e.Repo.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				taskRuns, err := e.Repo.ListTaskRuns(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"run": run, "tasks": taskRuns})
				}
				fmt.Printf("Run %s: plan=%s status=%s\n", run.RunID, run.PlanID, run.Status)
				if run.ErrorCode != nil {
					fmt.Printf("Error: %s: %s\n", *run.ErrorCode, deref(run.ErrorMessage))
				}
				t := newTable("TASK", "TYPE", "STATUS", "ATTEMPT", "ERROR")
				for _, tr := range taskRuns {
					t.AppendRow(table.Row{tr.TaskID, tr.TaskType, tr.Status, fmt.Sprintf("%d/%d", tr.Attempt, tr.MaxAttempts), deref(tr.ErrorCode)})
				}
				t.Render()
				return nil
			})
		},
	}
}

// --- approvals ---

func approvalCmd() *cobra.Command {
	a := &cobra.Command{Use: "approval", Short: "Review and resolve approvals"}
	a.AddCommand(approvalListCmd())
	a.AddCommand(approvalResolveCmd("approve", true))
	a.AddCommand(approvalResolveCmd("deny", false))
	return a
}

func approvalListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List approvals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListApprovals(ctx, repo.ApprovalFilters{Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "RUN", "TASK", "STATUS", "PROMPT")
				for _, a := range items {
					t.AppendRow(table.Row{short(a.ApprovalID), short(a.RunID), a.TaskID, a.Status, a.Prompt})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "pending", "status filter")
	return cmd
}

func approvalResolveCmd(verb string, approve bool) *cobra.Command {
	short := "Approve a pending approval"
	if !approve {
		short = "Deny a pending approval"
	}
	return &cobra.Command{
		Use:   verb + " <approval-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ResolveApproval(ctx, args[0], approve, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
}

// --- listings ---

func listingCmd() *cobra.Command {
	l := &cobra.Command{Use: "listing", Short: "Inspect broker listings"}
	l.AddCommand(listingListCmd())
	l.AddCommand(listingShowCmd())
	l.AddCommand(listingTransitionCmd())
	return l
}

func listingListCmd() *cobra.Command {
	var status, brokerID, profileID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListListings(ctx, repo.ListingFilters{BrokerID: brokerID, ProfileID: profileID, Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "BROKER", "STATUS", "CONFIDENCE", "DISCOVERED")
				for _, l := range items {
					t.AppendRow(table.Row{short(l.ListingID), l.BrokerID, l.Status, fmt.Sprintf("%.2f", l.Confidence), l.DiscoveredAt})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&brokerID, "broker", "", "broker filter")
	cmd.Flags().StringVar(&profileID, "profile", "", "profile filter")
	return cmd
}

func listingShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <listing-id>",
		Short: "Listing detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.Repo.GetListing(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
}

func listingTransitionCmd() *cobra.Command {
	var status, notes string
	cmd := &cobra.Command{
		Use:   "transition <listing-id>",
		Short: "Transition listing status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.TransitionListing(ctx, args[0], status, notes); err != nil {
					return err
				}
				l, err := e.Repo.GetListing(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "target status")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

// --- schedules ---

func scheduleCmd() *cobra.Command {
	s := &cobra.Command{Use: "schedule", Short: "Inspect scan schedules"}
	s.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListSchedules(ctx, "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "BROKER", "NEXT RUN", "INTERVAL", "ENABLED")
				for _, s := range items {
					t.AppendRow(table.Row{short(s.ScheduleID), s.BrokerID, s.NextRunAt, fmt.Sprintf("%dd", s.IntervalDays), s.Enabled})
				}
				t.Render()
				return nil
			})
		},
	})
	return s
}

// --- queue ---

func queueCmd() *cobra.Command {
	q := &cobra.Command{Use: "queue", Short: "Human action queue"}
	q.AddCommand(queueListCmd())
	q.AddCommand(queueCompleteCmd())
	return q
}

func queueListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued manual actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListQueueItems(ctx, status, 0)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "BROKER", "ACTION", "PRIORITY", "STATUS")
				for _, q := range items {
					t.AppendRow(table.Row{short(q.QueueID), q.BrokerID, q.ActionNeeded, q.Priority, q.Status})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "pending", "status filter")
	return cmd
}

func queueCompleteCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "complete <queue-id>",
		Short: "Mark a manual action done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				q, err := e.CompleteQueueItem(ctx, args[0], notes, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(q)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "completion notes")
	return cmd
}

// --- plan ---

func planCmd() *cobra.Command {
	p := &cobra.Command{Use: "plan", Short: "Inspect broker plans"}
	p.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a plan file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			parsed, err := plan.FromYAML(data)
			if err != nil {
				return err
			}
			return printJSONOrTable(map[string]any{
				"plan_id":   parsed.PlanID,
				"version":   parsed.Version,
				"plan_hash": plan.Hash(parsed),
				"tasks":     len(parsed.Tasks),
			})
		},
	})
	return p
}

// --- events ---

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Audit log"}
	var n int
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	l.AddCommand(tail)
	return l
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	var noRunner, noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start API server, runner, and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if addr == "" {
					addr = e.Config.Server.Bind
				}
				if e.Config.Server.AuthToken == "" && e.Config.Server.JWTSecret == "" {
					return fmt.Errorf("server.auth_token or server.jwt_secret is required")
				}

				sched := scheduler.New(e, slog.Default())
				handler, err := server.New(server.Config{
					Engine:    e,
					Scheduler: sched,
					BasePath:  basePath,
					Auth: server.AuthConfig{
						JWTSecret:   e.Config.Server.JWTSecret,
						StaticToken: e.Config.Server.AuthToken,
					},
				})
				if err != nil {
					return err
				}

				if !noRunner {
					runner := buildRunner(e)
					go func() { _ = runner.Run(ctx) }()
				}
				if !noScheduler && e.Config.Scheduler.Enabled {
					go func() { _ = sched.Run(ctx) }()
				}

				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Erasure API on http://%s%s\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&noRunner, "no-runner", false, "serve API only, no runner")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve without the scheduler")
	return cmd
}

// buildRunner wires the executor registry against the engine's sinks.
func buildRunner(e engine.Engine) *engine.Runner {
	limiter := ratelimit.New(e.Config.RateLimit.PerBrokerPerHour)
	var verifier match.Verifier
	if e.Config.LLM.Provider == "openai" && e.Config.LLM.APIKey != "" {
		verifier = match.NewOpenAIVerifier(e.Config.LLM.APIKey, e.Config.LLM.Model, e.Config.LLM.BaseURL)
	}
	registry := tasks.DefaultRegistry(
		&tasks.MatchIdentity{
			Profiles:  e,
			Listings:  e,
			Scorer:    match.NewScorer(),
			Verifier:  verifier,
			Low:       e.Config.Policy.VerifyThresholdLow,
			High:      e.Config.Policy.VerifyThresholdHigh,
			Threshold: e.Config.Policy.ConfidenceThreshold,
		},
		&tasks.BrokerUpdateStatus{Listings: e},
		&tasks.QueueHumanAction{Queue: e},
		tasks.NewHTTPRequest(limiter),
	)
	store := artifacts.New(e.Config.Paths.ArtifactsRoot, e.DB)
	return engine.NewRunner(e, registry, store, slog.Default())
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}

	var v *vault.Vault
	if cfg.Vault.EncryptionKey != "" {
		key, err := cfg.EncryptionKeyBytes()
		if err != nil {
			return err
		}
		if v, err = vault.New(key); err != nil {
			return err
		}
	}
	var cat *catalog.Catalog
	if _, statErr := os.Stat(cfg.Paths.CatalogFile); statErr == nil {
		if cat, err = catalog.Load(cfg.Paths.CatalogFile); err != nil {
			return err
		}
	}

	e := engine.New(conn, cfg, v, cat)
	return fn(ctx, e)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(headers ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row(headers))
	return t
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
