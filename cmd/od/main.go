package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"officedesk/internal/app"
	"officedesk/internal/config"
	"officedesk/internal/db"
	"officedesk/internal/engine"
	"officedesk/internal/logger"
	"officedesk/internal/repo"
	"officedesk/internal/server"
	"officedesk/internal/service/llm"
	"officedesk/internal/service/semantic"
)

var rootCmd = &cobra.Command{
	Use:   "od",
	Short: "Officedesk CLI",
	Long: `Officedesk automates everyday office work from a single workspace.
- Workspace: the .officedesk directory holding the database, config, and uploaded files.
- Projects: group related tasks and documents; attach and detach freely.
- Tasks: units of work (email, file, pdf, general) that run on demand and record their result.
- Documents: uploaded files stored under uploads/ with metadata in the database.
- Chat: talk to the configured LLM provider, optionally grounded in project context.
- Event log: diary of changes, view with 'od log tail'.`,
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
	_ = godotenv.Load()
	viper.SetEnvPrefix("OD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("debug", false, "verbose logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(documentCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); err == nil {
				fmt.Printf("config already exists at %s\n", cfgPath)
				return nil
			}
			if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("workspace initialized, config written to %s\n", cfgPath)
			return nil
		},
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListProjects(ctx, repo.ProjectFilters{Status: status, Limit: 200})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var name, desc, status string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.CreateProject(ctx, engine.ProjectCreateOptions{
					Name:        name,
					Description: desc,
					Status:      status,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "initial status")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project with attached tasks and documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.Repo.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				tasks, err := a.Engine.Repo.ListProjectTasks(ctx, p.ID)
				if err != nil {
					return err
				}
				docs, err := a.Engine.Repo.ListProjectDocuments(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"project":   p,
					"tasks":     tasks,
					"documents": docs,
				})
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var name, desc, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.UpdateProject(ctx, engine.ProjectUpdateOptions{
					ID:          args[0],
					Name:        optionalString(name),
					Description: optionalString(desc),
					Status:      optionalString(status),
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&desc, "description", "", "new description")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeleteProject(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func taskCmd() *cobra.Command {
	tsk := &cobra.Command{Use: "task", Short: "Manage and run tasks"}
	tsk.AddCommand(taskCreateCmd())
	tsk.AddCommand(taskListCmd())
	tsk.AddCommand(taskGetCmd())
	tsk.AddCommand(taskDeleteCmd())
	tsk.AddCommand(taskRunCmd())
	tsk.AddCommand(taskStatsCmd())
	return tsk
}

func taskCreateCmd() *cobra.Command {
	var name, desc, category, taskType, params, projectID string
	var priority int
	var tags []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			var parameters map[string]any
			if params != "" {
				if err := json.Unmarshal([]byte(params), &parameters); err != nil {
					return fmt.Errorf("invalid --params JSON: %w", err)
				}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.CreateTask(ctx, engine.TaskCreateOptions{
					Name:        name,
					Description: desc,
					Category:    category,
					Type:        taskType,
					Priority:    priority,
					Parameters:  parameters,
					Tags:        tags,
					ProjectID:   projectID,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "task name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&category, "category", "general", "category (email|file|pdf|general)")
	cmd.Flags().StringVar(&taskType, "type", "", "category-specific action")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority 1..3")
	cmd.Flags().StringVar(&params, "params", "", "parameters as JSON object")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringVar(&projectID, "project", "", "attach to project id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if f.Limit <= 0 {
					f.Limit = 200
				}
				tasks, err := a.Engine.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Category", "Status", "Priority"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Category, t.Status, t.Priority})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().IntVar(&f.Priority, "priority", 0, "priority filter")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.Repo.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeleteTask(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func taskRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Run a task and report its outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.RunTask(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("task %s: %s\n", t.ID, t.Status)
				if t.Result != nil {
					fmt.Println(*t.Result)
				}
				if t.Error != nil {
					fmt.Println("error:", *t.Error)
				}
				return nil
			})
		},
	}
}

func taskStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Task counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				counts, err := a.Engine.Repo.CountTasksByStatus(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				for status, c := range counts {
					fmt.Printf("%s: %d\n", status, c)
				}
				return nil
			})
		},
	}
}

func documentCmd() *cobra.Command {
	doc := &cobra.Command{Use: "document", Short: "Manage uploaded documents"}
	doc.AddCommand(documentListCmd())
	doc.AddCommand(documentUploadCmd())
	doc.AddCommand(documentDeleteCmd())
	return doc
}

func documentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				docs, err := a.Engine.Repo.ListDocuments(ctx, repo.DocumentFilters{Limit: 200})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(docs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Filename", "Size", "Uploaded"})
				for _, d := range docs {
					tw.AppendRow(table.Row{d.ID, d.Filename, d.SizeBytes, d.UploadedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func documentUploadCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a local file into the workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				info, err := f.Stat()
				if err != nil {
					return err
				}
				if info.Size() > a.Config.Uploads.MaxBytes {
					return fmt.Errorf("file exceeds %d bytes", a.Config.Uploads.MaxBytes)
				}
				d, err := a.Engine.UploadDocument(ctx, engine.DocumentUploadOptions{
					Filename:  info.Name(),
					Content:   f,
					ProjectID: projectID,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "attach to project id")
	return cmd
}

func documentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and its stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeleteDocument(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage users"}
	usr.AddCommand(userCreateCmd())
	usr.AddCommand(userListCmd())
	usr.AddCommand(userDeleteCmd())
	usr.AddCommand(userKeyCmd())
	return usr
}

func userCreateCmd() *cobra.Command {
	var username, password, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Engine.CreateUser(ctx, engine.UserCreateOptions{
					Username: username,
					Password: password,
					Role:     role,
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&role, "role", "", "role (admin|member)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				users, err := a.Engine.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Username", "Role", "Created"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Username, u.Role, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func userDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeleteUser(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func userKeyCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "key <user-id>",
		Short: "Issue an API key for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				k, secret, err := a.Engine.CreateAPIKey(ctx, args[0], name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				// The plaintext key prints exactly once.
				return printJSON(map[string]any{"key": secret, "id": k.ID, "name": k.Name})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func chatCmd() *cobra.Command {
	var provider, model, projectID string
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Chat with the configured LLM provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				system := ""
				if projectID != "" && a.Semantic != nil && a.Semantic.Available(ctx) {
					chunks, err := a.Semantic.Context(ctx, projectID, args[0], 5)
					if err == nil {
						system = semantic.Prompt(chunks)
					}
				}
				resp, err := a.LLM.Chat(ctx, llm.Request{
					Message:  args[0],
					System:   system,
					Provider: provider,
					Model:    model,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(resp)
				}
				fmt.Println(resp.Reply)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "llm provider (openai|anthropic)")
	cmd.Flags().StringVar(&model, "model", "", "model override")
	cmd.Flags().StringVar(&projectID, "project", "", "include project context")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID, projectID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Engine.Repo.LatestEvents(ctx, n, projectID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(viper.GetBool("debug"))
			if err != nil {
				return err
			}
			defer log.Sync()
			a, err := app.Bootstrap(viper.GetString("workspace"), log)
			if err != nil {
				return err
			}
			defer a.Close()
			authCfg := server.AuthConfig{
				JWTSecret: os.Getenv("OD_JWT_SECRET"),
				Logger:    log,
			}
			if authCfg.JWTSecret == "" {
				log.Warnw("OD_JWT_SECRET not set, serving in open mode")
			}
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: basePath,
				Auth:     authCfg,
				LLM:      a.LLM,
				Semantic: a.Semantic,
				Logger:   log,
			})
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			server.StartWebhookDispatcher(runCtx, a.Engine, log)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-runCtx.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Infow("serving", "addr", addr, "base_path", basePath)
			fmt.Printf("Serving Officedesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	log := logger.Nop()
	if viper.GetBool("debug") {
		var err error
		log, err = logger.New(true)
		if err != nil {
			return err
		}
	}
	a, err := app.Bootstrap(viper.GetString("workspace"), log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
