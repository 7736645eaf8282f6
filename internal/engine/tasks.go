package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"officedesk/internal/domain"
	"officedesk/internal/events"
	"officedesk/internal/service/files"
	"officedesk/internal/service/pdfgen"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Name              string
	Description       string
	Category          string
	Type              string
	Priority          int
	Parameters        map[string]any
	Tags              []string
	ScheduledFor      string
	IsRecurring       bool
	RecurrencePattern string
	ProjectID         string
	ActorID           string
}

func validTaskCategory(category string) error {
	switch category {
	case "email", "file", "pdf", "general":
		return nil
	}
	return fmt.Errorf("invalid task category %q", category)
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Name == "" {
		return domain.Task{}, errors.New("name is required")
	}
	if opts.Category == "" {
		opts.Category = "general"
	}
	if err := validTaskCategory(opts.Category); err != nil {
		return domain.Task{}, err
	}
	if opts.Priority == 0 {
		opts.Priority = 2
	}
	if opts.Priority < 1 || opts.Priority > 3 {
		return domain.Task{}, errors.New("priority must be between 1 and 3")
	}
	if opts.ScheduledFor != "" {
		if _, err := time.Parse(time.RFC3339, opts.ScheduledFor); err != nil {
			return domain.Task{}, fmt.Errorf("invalid scheduled_for: %w", err)
		}
	}
	if opts.IsRecurring && opts.RecurrencePattern == "" {
		return domain.Task{}, errors.New("recurrence_pattern is required for recurring tasks")
	}
	if opts.ProjectID != "" {
		if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
			return domain.Task{}, err
		}
	}
	paramsJSON := ""
	if len(opts.Parameters) > 0 {
		data, err := json.Marshal(opts.Parameters)
		if err != nil {
			return domain.Task{}, fmt.Errorf("marshal parameters: %w", err)
		}
		paramsJSON = string(data)
	}
	now := e.nowStr()
	t := domain.Task{
		ID:                uuid.NewString(),
		Name:              opts.Name,
		Description:       opts.Description,
		Category:          opts.Category,
		Type:              opts.Type,
		Status:            "pending",
		Priority:          opts.Priority,
		ParametersJSON:    paramsJSON,
		Tags:              opts.Tags,
		ScheduledFor:      optionalString(opts.ScheduledFor),
		IsRecurring:       opts.IsRecurring,
		RecurrencePattern: optionalString(opts.RecurrencePattern),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if opts.ProjectID != "" {
		if err := e.Repo.AttachTask(ctx, tx, opts.ProjectID, t.ID, now); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "task.created", opts.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{"name": t.Name, "category": t.Category}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions encapsulates allowed updates. Nil fields are left
// unchanged.
type TaskUpdateOptions struct {
	ID           string
	Name         *string
	Description  *string
	Priority     *int
	Parameters   map[string]any
	Tags         []string
	ScheduledFor *string
	ActorID      string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return t, err
	}
	if t.Status == "running" {
		return t, errors.New("task is running; wait for it to finish")
	}
	if opts.Name != nil {
		if *opts.Name == "" {
			return t, errors.New("name is required")
		}
		t.Name = *opts.Name
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.Priority != nil {
		if *opts.Priority < 1 || *opts.Priority > 3 {
			return t, errors.New("priority must be between 1 and 3")
		}
		t.Priority = *opts.Priority
	}
	if opts.Parameters != nil {
		data, err := json.Marshal(opts.Parameters)
		if err != nil {
			return t, fmt.Errorf("marshal parameters: %w", err)
		}
		t.ParametersJSON = string(data)
	}
	if opts.Tags != nil {
		t.Tags = opts.Tags
	}
	if opts.ScheduledFor != nil {
		if *opts.ScheduledFor == "" {
			t.ScheduledFor = nil
		} else {
			if _, err := time.Parse(time.RFC3339, *opts.ScheduledFor); err != nil {
				return t, fmt.Errorf("invalid scheduled_for: %w", err)
			}
			t.ScheduledFor = opts.ScheduledFor
		}
	}
	t.UpdatedAt = e.nowStr()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", "", "task", t.ID, opts.ActorID, events.EventPayload{"status": t.Status}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, id, actorID string) error {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", "", "task", id, actorID, events.EventPayload{"name": t.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// ErrTaskNotRunnable reports a run attempt from a state other than
// pending or failed.
var ErrTaskNotRunnable = errors.New("task not in a runnable state")

// RunTask executes a task synchronously. The running status is
// committed before dispatch so concurrent runs of the same task are
// rejected, then the terminal status and result or error are stored.
func (e Engine) RunTask(ctx context.Context, id, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	if t.Status != "pending" && t.Status != "failed" {
		return t, fmt.Errorf("%w: status is %s", ErrTaskNotRunnable, t.Status)
	}

	t.Status = "running"
	t.Error = nil
	t.UpdatedAt = e.nowStr()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.run.started", "", "task", t.ID, actorID, events.EventPayload{"category": t.Category}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}

	result, runErr := e.dispatch(ctx, t)

	if runErr != nil {
		t.Status = "failed"
		msg := runErr.Error()
		t.Error = &msg
		t.Result = nil
		e.Log.Warnw("task run failed", "task_id", t.ID, "category", t.Category, "error", msg)
	} else {
		t.Status = "completed"
		t.Result = &result
		t.Error = nil
		e.Log.Infow("task run completed", "task_id", t.ID, "category", t.Category)
	}
	t.UpdatedAt = e.nowStr()

	tx2, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx2.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx2, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx2, "task.run.finished", "", "task", t.ID, actorID, events.EventPayload{"status": t.Status}); err != nil {
		return t, err
	}
	if err := tx2.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) dispatch(ctx context.Context, t domain.Task) (string, error) {
	params := map[string]any{}
	if t.ParametersJSON != "" {
		if err := json.Unmarshal([]byte(t.ParametersJSON), &params); err != nil {
			return "", fmt.Errorf("invalid task parameters: %w", err)
		}
	}
	switch t.Category {
	case "email":
		return e.runEmail(params)
	case "file":
		return e.runFile(t.Type, params)
	case "pdf":
		return e.runPDF(t.Type, params)
	case "general":
		return "task acknowledged", nil
	default:
		return "", fmt.Errorf("unknown task category %q", t.Category)
	}
}

func (e Engine) runEmail(params map[string]any) (string, error) {
	if e.Mailer == nil {
		return "", errors.New("mail not configured")
	}
	to := stringSliceParam(params, "to")
	if len(to) == 0 {
		return "", errors.New("parameter to is required")
	}
	subject := stringParam(params, "subject")
	body := stringParam(params, "body")
	if err := e.Mailer.Send(to, subject, body); err != nil {
		return "", err
	}
	return fmt.Sprintf("sent to %d recipient(s)", len(to)), nil
}

func (e Engine) runFile(action string, params map[string]any) (string, error) {
	if e.Store == nil {
		return "", errors.New("file storage not configured")
	}
	switch action {
	case "convert_excel":
		path := stringParam(params, "path")
		if path == "" {
			return "", errors.New("parameter path is required")
		}
		out, err := e.Store.ConvertExcelToCSV(path)
		if err != nil {
			return "", err
		}
		return "converted to " + out, nil
	case "rename":
		dir := stringParam(params, "dir")
		pattern := stringParam(params, "pattern")
		if dir == "" || pattern == "" {
			return "", errors.New("parameters dir and pattern are required")
		}
		n, err := files.RenameByPattern(dir, pattern, stringParam(params, "replacement"))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("renamed %d file(s)", n), nil
	case "organize":
		dir := stringParam(params, "dir")
		if dir == "" {
			return "", errors.New("parameter dir is required")
		}
		n, err := files.OrganizeByExtension(dir)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("organized %d file(s)", n), nil
	default:
		return "", fmt.Errorf("unknown file action %q", action)
	}
}

func (e Engine) runPDF(action string, params map[string]any) (string, error) {
	if e.Store == nil {
		return "", errors.New("file storage not configured")
	}
	switch action {
	case "", "report":
		title := stringParam(params, "title")
		if title == "" {
			return "", errors.New("parameter title is required")
		}
		path, err := pdfgen.Write(e.Store.TempDir, pdfgen.Report{
			Title: title,
			Lines: stringSliceParam(params, "lines"),
		})
		if err != nil {
			return "", err
		}
		return "wrote " + path, nil
	default:
		return "", fmt.Errorf("unknown pdf action %q", action)
	}
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func stringSliceParam(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	}
	return nil
}
