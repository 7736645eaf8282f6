package engine_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"officedesk/internal/config"
	"officedesk/internal/db"
	"officedesk/internal/engine"
	"officedesk/internal/migrate"
	"officedesk/internal/repo"
	"officedesk/internal/service/files"
)

type fakeSender struct {
	sent []sentMail
	err  error
}

type sentMail struct {
	To      []string
	Subject string
	Body    string
}

func (f *fakeSender) Send(to []string, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

type testEnv struct {
	Engine engine.Engine
	Sender *fakeSender
	Store  *files.Store
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	if _, err := db.EnsureWorkspace(dir); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := files.NewStore(db.UploadsDir(dir), db.TempDir(dir))
	sender := &fakeSender{}
	eng := engine.New(conn, config.Default(), store, sender, nil)
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	eng.Events.Now = eng.Now
	return testEnv{Engine: eng, Sender: sender, Store: store, Ctx: context.Background()}
}

func TestRunGeneralTaskCompletes(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Name:    "ack",
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != "pending" {
		t.Fatalf("expected pending, got %s", task.Status)
	}
	task, err = env.Engine.RunTask(env.Ctx, task.ID, "tester")
	if err != nil {
		t.Fatalf("run task: %v", err)
	}
	if task.Status != "completed" {
		t.Fatalf("expected completed, got %s", task.Status)
	}
	if task.Result == nil || *task.Result == "" {
		t.Fatalf("expected result")
	}
	// completed tasks cannot run again
	_, err = env.Engine.RunTask(env.Ctx, task.ID, "tester")
	if !errors.Is(err, engine.ErrTaskNotRunnable) {
		t.Fatalf("expected not runnable, got %v", err)
	}
}

func TestRunEmailTask(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Name:     "weekly update",
		Category: "email",
		Parameters: map[string]any{
			"to":      []any{"a@example.com", "b@example.com"},
			"subject": "Weekly",
			"body":    "All good.",
		},
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	task, err = env.Engine.RunTask(env.Ctx, task.ID, "tester")
	if err != nil {
		t.Fatalf("run task: %v", err)
	}
	if task.Status != "completed" {
		t.Fatalf("expected completed, got %s", task.Status)
	}
	if len(env.Sender.sent) != 1 || len(env.Sender.sent[0].To) != 2 {
		t.Fatalf("expected one send to two recipients, got %+v", env.Sender.sent)
	}
	if env.Sender.sent[0].Subject != "Weekly" {
		t.Fatalf("unexpected subject %q", env.Sender.sent[0].Subject)
	}
}

func TestRunEmailTaskFailsThenRetries(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Name:     "no recipient",
		Category: "email",
		ActorID:  "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.RunTask(env.Ctx, task.ID, "tester")
	if err != nil {
		t.Fatalf("run task: %v", err)
	}
	if task.Status != "failed" {
		t.Fatalf("expected failed, got %s", task.Status)
	}
	if task.Error == nil || !strings.Contains(*task.Error, "to is required") {
		t.Fatalf("expected missing recipient error, got %v", task.Error)
	}
	// failed tasks are runnable again
	task, err = env.Engine.RunTask(env.Ctx, task.ID, "tester")
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if task.Status != "failed" {
		t.Fatalf("expected failed on rerun, got %s", task.Status)
	}
}

func TestRunPDFTaskWritesReport(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Name:     "monthly report",
		Category: "pdf",
		Parameters: map[string]any{
			"title": "March Summary",
			"lines": []any{"one", "two"},
		},
		ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.RunTask(env.Ctx, task.ID, "tester")
	if err != nil {
		t.Fatalf("run task: %v", err)
	}
	if task.Status != "completed" {
		t.Fatalf("expected completed, got %s: %v", task.Status, task.Error)
	}
	entries, err := os.ReadDir(env.Store.TempDir)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".pdf" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a pdf in temp dir")
	}
}

func TestTaskDeleteThenSecondDeleteNotFound(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Name: "throwaway", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	err = env.Engine.DeleteTask(env.Ctx, task.ID, "tester")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestUpdateRunningTaskRejected(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Name: "busy", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `UPDATE tasks SET status='running' WHERE id=?`, task.ID); err != nil {
		t.Fatal(err)
	}
	name := "renamed"
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Name: &name, ActorID: "tester"})
	if err == nil {
		t.Fatalf("expected update rejection while running")
	}
}

func TestProjectAttachDetachTask(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Name: "Q2 launch", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Name: "draft plan", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.AttachTask(env.Ctx, p.ID, task.ID, "tester"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	tasks, err := env.Engine.Repo.ListProjectTasks(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].ID != task.ID {
		t.Fatalf("expected attached task, got %d", len(tasks))
	}
	if err := env.Engine.DetachTask(env.Ctx, p.ID, task.ID, "tester"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	err = env.Engine.DetachTask(env.Ctx, p.ID, task.ID, "tester")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on second detach, got %v", err)
	}
}

func TestTaskCreateAttachesToProject(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Name: "intake", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Name: "linked", ProjectID: p.ID, ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	tasks, err := env.Engine.Repo.ListProjectTasks(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected one attached task, got %d", len(tasks))
	}
	// a missing project is rejected up front
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Name: "orphan", ProjectID: "nope", ActorID: "tester"})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for missing project, got %v", err)
	}
}

func TestTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ActorID: "tester"}); err == nil {
		t.Fatalf("expected name requirement")
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Name: "x", Category: "video", ActorID: "tester"}); err == nil {
		t.Fatalf("expected invalid category")
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Name: "x", Priority: 9, ActorID: "tester"}); err == nil {
		t.Fatalf("expected priority range error")
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Name: "x", ScheduledFor: "tomorrow", ActorID: "tester"}); err == nil {
		t.Fatalf("expected scheduled_for parse error")
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Name: "x", IsRecurring: true, ActorID: "tester"}); err == nil {
		t.Fatalf("expected recurrence_pattern requirement")
	}
}

func TestUploadAndDeleteDocument(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Engine.UploadDocument(env.Ctx, engine.DocumentUploadOptions{
		Filename: "notes.txt",
		Content:  bytes.NewReader([]byte("hello")),
		ActorID:  "tester",
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if d.SizeBytes != 5 {
		t.Fatalf("expected size 5, got %d", d.SizeBytes)
	}
	stored := filepath.Join(env.Store.UploadsDir, d.StoredName)
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("expected stored file: %v", err)
	}
	if err := env.Engine.DeleteDocument(env.Ctx, d.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetDocument(env.Ctx, d.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected row gone, got %v", err)
	}
	if _, err := os.Stat(stored); !os.IsNotExist(err) {
		t.Fatalf("expected stored file removed")
	}
}

func TestUploadRejectsDisallowedExtension(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.UploadDocument(env.Ctx, engine.DocumentUploadOptions{
		Filename: "malware.exe",
		Content:  bytes.NewReader([]byte("nope")),
		ActorID:  "tester",
	})
	if err == nil || !strings.Contains(err.Error(), "not allowed") {
		t.Fatalf("expected extension rejection, got %v", err)
	}
}

func TestUserLifecycle(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{
		Username: "dana",
		Password: "correct horse",
		ActorID:  "tester",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Role != "member" {
		t.Fatalf("expected default role member, got %s", u.Role)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "dana", "correct horse"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "dana", "wrong"); !errors.Is(err, engine.ErrBadCredentials) {
		t.Fatalf("expected bad credentials, got %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "nobody", "correct horse"); !errors.Is(err, engine.ErrBadCredentials) {
		t.Fatalf("expected bad credentials for unknown user, got %v", err)
	}
	// duplicates and weak passwords rejected
	if _, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Username: "dana", Password: "correct horse", ActorID: "tester"}); err == nil {
		t.Fatalf("expected duplicate username error")
	}
	if _, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Username: "eve", Password: "short", ActorID: "tester"}); err == nil {
		t.Fatalf("expected weak password error")
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Username: "ops", Password: "longenough", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	k, secret, err := env.Engine.CreateAPIKey(env.Ctx, u.ID, "ci", "tester")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if secret == "" || k.ID == "" {
		t.Fatalf("expected key material")
	}
	got, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashSecret(secret))
	if err != nil {
		t.Fatalf("lookup by hash: %v", err)
	}
	if got.UserID != u.ID {
		t.Fatalf("expected key owner %s, got %s", u.ID, got.UserID)
	}
}

func TestEventsAppendedOnMutations(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Name: "evented", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RunTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "", "", "task", task.ID)
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(events) < 3 {
		t.Fatalf("expected created/started/finished events, got %d", len(events))
	}
	for _, evt := range events {
		if evt.ActorID != "tester" {
			t.Fatalf("expected actor recorded, got %q", evt.ActorID)
		}
	}
}

func TestProjectStatusValidation(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Name: "default status", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != "active" {
		t.Fatalf("expected active default, got %s", p.Status)
	}
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Name: "bad", Status: "paused", ActorID: "tester"}); err == nil {
		t.Fatalf("expected invalid status error")
	}
	status := "archived"
	p, err = env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: p.ID, Status: &status, ActorID: "tester"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Status != "archived" {
		t.Fatalf("expected archived, got %s", p.Status)
	}
}
