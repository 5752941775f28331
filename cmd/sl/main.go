package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"siteline/internal/app"
	"siteline/internal/config"
	"siteline/internal/dateindex"
	"siteline/internal/db"
	"siteline/internal/domain"
	"siteline/internal/engine"
	"siteline/internal/migrate"
	"siteline/internal/repo"
	"siteline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Siteline CLI",
	Long: `Siteline tracks construction project schedules as timeline revisions.
- Workspace: the .siteline directory holding the database.
- Project: owns timeline revisions and members.
- Timeline: one revision of the schedule with a weighted task tree and a
  planned progress curve per task; the newest revision is the live one.
- Measurement: a recorded progress reading on a task for a given date.
- Dashboard: planned/actual/baseline curves merged per day plus status counts.
- Event log: diary of changes, view with 'sl log tail'.`,
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
	viper.SetEnvPrefix("SITELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file path")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id")
	rootCmd.PersistentFlags().String("tier", "admin", "permission tier used for local projections")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
	_ = viper.BindPFlag("tier", rootCmd.PersistentFlags().Lookup("tier"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, viper.GetString("actor-id"), name)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Created By", "Created At"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.CreatedBy, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := app.ResolveProject(ctx, r, viper.GetString("project"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := app.ResolveProject(ctx, r, viper.GetString("project"))
				if err != nil {
					return err
				}
				return r.DeleteProject(ctx, p.ID)
			})
		},
	}
}

func memberCmd() *cobra.Command {
	mem := &cobra.Command{Use: "member", Short: "Manage project members"}
	mem.AddCommand(memberAddCmd())
	mem.AddCommand(memberListCmd())
	mem.AddCommand(memberRemoveCmd())
	return mem
}

func memberAddCmd() *cobra.Command {
	var userID, permission string
	var canEdit bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := app.ResolveProject(ctx, e.Repo, viper.GetString("project"))
				if err != nil {
					return err
				}
				m := memberFromFlags(p.ID, userID, permission, canEdit)
				if err := e.Repo.UpsertMember(ctx, nil, m); err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&permission, "permission", "employee", "permission tier (owner, admin, support, employee)")
	cmd.Flags().BoolVar(&canEdit, "can-edit", false, "allow recording measurements")
	return cmd
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := app.ResolveProject(ctx, r, viper.GetString("project"))
				if err != nil {
					return err
				}
				items, err := r.ListMembers(ctx, p.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Permission", "Can Edit", "Since"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.UserID, m.Permission, m.CanEditTimeline, m.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func memberRemoveCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := app.ResolveProject(ctx, r, viper.GetString("project"))
				if err != nil {
					return err
				}
				return r.DeleteMember(ctx, p.ID, userID)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	return cmd
}

func timelineCmd() *cobra.Command {
	tl := &cobra.Command{Use: "timeline", Short: "Manage timeline revisions"}
	tl.AddCommand(timelineImportCmd())
	tl.AddCommand(timelineListCmd())
	tl.AddCommand(timelineShowCmd())
	tl.AddCommand(timelineLatestCmd())
	tl.AddCommand(timelineDashboardCmd())
	tl.AddCommand(timelineHistoryCmd())
	tl.AddCommand(timelineRenameCmd())
	tl.AddCommand(timelineDeleteCmd())
	return tl
}

func timelineImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create a revision from a JSON schedule file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var in engine.TimelineInput
			if err := json.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := app.ResolveProject(ctx, e.Repo, viper.GetString("project"))
				if err != nil {
					return err
				}
				tl, err := e.CreateTimeline(ctx, viper.GetString("actor-id"), p.ID, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(engine.ProjectTimeline(tl, viper.GetString("tier"), time.Now()))
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "schedule JSON file")
	return cmd
}

func timelineListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List revisions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := app.ResolveProject(ctx, e.Repo, viper.GetString("project"))
				if err != nil {
					return err
				}
				items, err := e.ListTimelines(ctx, p.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created By", "Created At", "Tasks"})
				for _, tl := range items {
					tw.AppendRow(table.Row{tl.ID, tl.Name, tl.CreatedBy, tl.CreatedAt, len(tl.Tasks)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func timelineShowCmd() *cobra.Command {
	var id, date string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show one revision projected at a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := app.ResolveProject(ctx, e.Repo, viper.GetString("project"))
				if err != nil {
					return err
				}
				at, err := parseDateFlag(date)
				if err != nil {
					return err
				}
				tl, err := e.GetTimeline(ctx, p.ID, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(engine.ProjectTimeline(tl, viper.GetString("tier"), at))
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "timeline id")
	cmd.Flags().StringVar(&date, "date", "", "query date (default now)")
	return cmd
}

func timelineLatestCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the live revision projected at a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := app.ResolveProject(ctx, e.Repo, viper.GetString("project"))
				if err != nil {
					return err
				}
				at, err := parseDateFlag(date)
				if err != nil {
					return err
				}
				tl, err := e.LatestTimeline(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(engine.ProjectTimeline(tl, viper.GetString("tier"), at))
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "query date (default now)")
	return cmd
}

func timelineDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Project dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := app.ResolveProject(ctx, e.Repo, viper.GetString("project"))
				if err != nil {
					return err
				}
				d, err := e.Dashboard(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func timelineHistoryCmd() *cobra.Command {
	var taskID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Measurement history across revisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := app.ResolveProject(ctx, e.Repo, viper.GetString("project"))
				if err != nil {
					return err
				}
				entries, err := e.History(ctx, p.ID, taskID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Task", "Progress", "Measured", "Published", "Revision"})
				for _, h := range entries {
					tw.AppendRow(table.Row{h.TaskName, h.Progress, h.MeasurementDate, h.PublicationDate, h.TimelineName})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "restrict to one task id")
	return cmd
}

func timelineRenameCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "rename",
		Short: "Rename a revision",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" || name == "" {
				return fmt.Errorf("--id and --name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := app.ResolveProject(ctx, e.Repo, viper.GetString("project"))
				if err != nil {
					return err
				}
				tl, err := e.RenameTimeline(ctx, viper.GetString("actor-id"), p.ID, id, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(tl)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "timeline id")
	cmd.Flags().StringVar(&name, "name", "", "new name")
	return cmd
}

func timelineDeleteCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a revision",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := app.ResolveProject(ctx, e.Repo, viper.GetString("project"))
				if err != nil {
					return err
				}
				return e.DeleteTimeline(ctx, viper.GetString("actor-id"), p.ID, id)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "timeline id")
	return cmd
}

func progressCmd() *cobra.Command {
	prg := &cobra.Command{Use: "progress", Short: "Record and remove progress readings"}
	prg.AddCommand(progressRecordCmd())
	prg.AddCommand(progressDeleteCmd())
	return prg
}

func progressRecordCmd() *cobra.Command {
	var timelineID, taskID, date string
	var value float64
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a measurement on a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskID == "" {
				return fmt.Errorf("--task required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := app.ResolveProject(ctx, e.Repo, viper.GetString("project"))
				if err != nil {
					return err
				}
				id := timelineID
				if id == "" {
					latest, err := e.LatestTimeline(ctx, p.ID)
					if err != nil {
						return err
					}
					id = latest.ID
				}
				at, err := parseDateFlag(date)
				if err != nil {
					return err
				}
				tl, err := e.RecordMeasurement(ctx, viper.GetString("actor-id"), p.ID, id, taskID, value, at)
				if err != nil {
					return err
				}
				return printJSONOrTable(engine.ProjectTimeline(tl, viper.GetString("tier"), at))
			})
		},
	}
	cmd.Flags().StringVar(&timelineID, "timeline", "", "timeline id (default latest)")
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	cmd.Flags().Float64Var(&value, "value", 0, "progress fraction in [0,1]")
	cmd.Flags().StringVar(&date, "date", "", "measurement date (default now)")
	return cmd
}

func progressDeleteCmd() *cobra.Command {
	var timelineID, date string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove every entry recorded for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			if timelineID == "" || date == "" {
				return fmt.Errorf("--timeline and --date required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := app.ResolveProject(ctx, e.Repo, viper.GetString("project"))
				if err != nil {
					return err
				}
				at, err := dateindex.Parse(date)
				if err != nil {
					return err
				}
				tl, err := e.DeleteProgressDate(ctx, viper.GetString("actor-id"), p.ID, timelineID, at)
				if err != nil {
					return err
				}
				return printJSONOrTable(tl)
			})
		},
	}
	cmd.Flags().StringVar(&timelineID, "timeline", "", "timeline id")
	cmd.Flags().StringVar(&date, "date", "", "date to strip")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyRevokeCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name, permission string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (the secret is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				return fmt.Errorf("--actor required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				secret := newKeySecret()
				key := newStoredKey(actorID, name, permission, secret)
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				fmt.Printf("api key created: id=%s\nsecret (save it now): %s\n", key.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor the key acts as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	cmd.Flags().StringVar(&permission, "permission", "employee", "tier the key acts with")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Permission", "Created At"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.Permission, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, id)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "key id")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := app.ResolveProject(ctx, e.Repo, viper.GetString("project"))
				if err != nil {
					return err
				}
				events, err := e.Repo.ListEvents(ctx, p.ID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Listen = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			secret := cfg.Auth.JWTSecret
			if env := os.Getenv("SITELINE_JWT_SECRET"); env != "" {
				secret = env
			}
			if secret == "" {
				return fmt.Errorf("jwt secret required; set auth.jwt_secret or SITELINE_JWT_SECRET")
			}
			authCfg := server.AuthConfig{
				JWTSecret:              secret,
				AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHdr,
				TokenTTL:               time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: cfg.Server.BasePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Listen, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Siteline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
				cfg.Server.Listen, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func memberFromFlags(projectID, userID, permission string, canEdit bool) domain.Member {
	return domain.Member{
		ProjectID:       projectID,
		UserID:          userID,
		Permission:      permission,
		CanEditTimeline: canEdit,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
	}
}

func newKeySecret() string {
	return uuid.NewString()
}

func newStoredKey(actorID, name, permission, secret string) domain.APIKey {
	return domain.APIKey{
		ID:         uuid.NewString(),
		ActorID:    actorID,
		Name:       name,
		Permission: permission,
		KeyHash:    repo.HashAPIKey(secret),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
}

func parseDateFlag(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Now().UTC(), nil
	}
	return dateindex.Parse(raw)
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
