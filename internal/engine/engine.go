package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"officedesk/internal/config"
	"officedesk/internal/domain"
	"officedesk/internal/events"
	"officedesk/internal/repo"
	"officedesk/internal/service/files"
	"officedesk/internal/service/mail"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Store  *files.Store
	Mailer mail.Sender
	Log    *zap.SugaredLogger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, store *files.Store, mailer mail.Sender, log *zap.SugaredLogger) Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db, Now: time.Now},
		Config: cfg,
		Store:  store,
		Mailer: mailer,
		Log:    log,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	Name        string
	Description string
	Status      string
	ActorID     string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.Name == "" {
		return domain.Project{}, errors.New("name is required")
	}
	if opts.Status == "" {
		opts.Status = "active"
	}
	if err := validProjectStatus(opts.Status); err != nil {
		return domain.Project{}, err
	}
	now := e.nowStr()
	p := domain.Project{
		ID:          uuid.NewString(),
		Name:        opts.Name,
		Description: opts.Description,
		Status:      opts.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, opts.ActorID, events.EventPayload{"name": p.Name, "status": p.Status}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func validProjectStatus(status string) error {
	switch status {
	case "active", "on_hold", "archived":
		return nil
	}
	return fmt.Errorf("invalid project status %q", status)
}

// ProjectUpdateOptions encapsulates allowed updates. Nil fields are
// left unchanged.
type ProjectUpdateOptions struct {
	ID          string
	Name        *string
	Description *string
	Status      *string
	ActorID     string
}

func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, opts.ID)
	if err != nil {
		return p, err
	}
	if opts.Name != nil {
		if *opts.Name == "" {
			return p, errors.New("name is required")
		}
		p.Name = *opts.Name
	}
	if opts.Description != nil {
		p.Description = *opts.Description
	}
	if opts.Status != nil {
		if err := validProjectStatus(*opts.Status); err != nil {
			return p, err
		}
		p.Status = *opts.Status
	}
	p.UpdatedAt = e.nowStr()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, "project.updated", p.ID, "project", p.ID, opts.ActorID, events.EventPayload{"status": p.Status}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

func (e Engine) DeleteProject(ctx context.Context, id, actorID string) error {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteProject(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.deleted", id, "project", id, actorID, events.EventPayload{"name": p.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// AttachTask links an existing task to a project.
func (e Engine) AttachTask(ctx context.Context, projectID, taskID, actorID string) error {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return err
	}
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.AttachTask(ctx, tx, projectID, taskID, e.nowStr()); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.task.attached", projectID, "task", taskID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) DetachTask(ctx context.Context, projectID, taskID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DetachTask(ctx, tx, projectID, taskID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.task.detached", projectID, "task", taskID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// AttachDocument links an existing document to a project.
func (e Engine) AttachDocument(ctx context.Context, projectID, documentID, actorID string) error {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return err
	}
	if _, err := e.Repo.GetDocument(ctx, documentID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.AttachDocument(ctx, tx, projectID, documentID, e.nowStr()); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.document.attached", projectID, "document", documentID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) DetachDocument(ctx context.Context, projectID, documentID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DetachDocument(ctx, tx, projectID, documentID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.document.detached", projectID, "document", documentID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
