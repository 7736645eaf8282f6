package app

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"officedesk/internal/config"
	"officedesk/internal/db"
	"officedesk/internal/engine"
	"officedesk/internal/migrate"
	"officedesk/internal/service/files"
	"officedesk/internal/service/llm"
	"officedesk/internal/service/mail"
	"officedesk/internal/service/semantic"
)

// App bundles everything a command needs: an open database, the
// workspace config, and the engine wired with its services.
type App struct {
	DB       *sql.DB
	Config   *config.Config
	Engine   engine.Engine
	Store    *files.Store
	LLM      *llm.Client
	Semantic *semantic.Client
	Log      *zap.SugaredLogger
}

// Bootstrap prepares the workspace: directory layout, database,
// migrations, config. Missing config falls back to defaults so a fresh
// workspace works without an init step.
func Bootstrap(workspace string, log *zap.SugaredLogger) (*App, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, fmt.Errorf("ensure workspace: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv()
	store := files.NewStore(db.UploadsDir(workspace), db.TempDir(workspace))
	mailer := mail.New(cfg.Mail)
	e := engine.New(conn, cfg, store, mailer, log)
	a := &App{
		DB:     conn,
		Config: cfg,
		Engine: e,
		Store:  store,
		LLM:    llm.New(cfg.LLM),
		Log:    log,
	}
	if cfg.Semantic.BaseURL != "" {
		a.Semantic = semantic.New(cfg.Semantic.BaseURL, cfg.Semantic.ProbeTTL)
	}
	return a, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
