package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"officedesk/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func marshalTags(tags []string) any {
	if len(tags) == 0 {
		return nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil
	}
	return string(data)
}

func unmarshalTags(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(v.String), &tags); err != nil {
		return nil
	}
	return tags
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,description,status,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,description,status,created_at,updated_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &desc, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if desc.Valid {
		p.Description = desc.String
	}
	return p, err
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT id,name,description,status,created_at,updated_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &desc, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if desc.Valid {
		p.Description = desc.String
	}
	return p, err
}

type ProjectFilters struct {
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,name,description,status,created_at,updated_at FROM projects ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		var desc sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &desc, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			p.Description = desc.String
		}
		res = append(res, p)
	}
	return res, nil
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET name=?, description=?, status=?, updated_at=? WHERE id=?`,
		p.Name, nullable(p.Description), p.Status, p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AttachTask(ctx context.Context, tx *sql.Tx, projectID, taskID, createdAt string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_tasks(project_id,task_id,created_at) VALUES (?,?,?)`,
		projectID, taskID, createdAt)
	return err
}

func (r Repo) DetachTask(ctx context.Context, tx *sql.Tx, projectID, taskID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM project_tasks WHERE project_id=? AND task_id=?`, projectID, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AttachDocument(ctx context.Context, tx *sql.Tx, projectID, documentID, createdAt string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_documents(project_id,document_id,created_at) VALUES (?,?,?)`,
		projectID, documentID, createdAt)
	return err
}

func (r Repo) DetachDocument(ctx context.Context, tx *sql.Tx, projectID, documentID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM project_documents WHERE project_id=? AND document_id=?`, projectID, documentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListProjectTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, taskSelect+` JOIN project_tasks pt ON pt.task_id=tasks.id WHERE pt.project_id=? ORDER BY tasks.created_at DESC, tasks.id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r Repo) ListProjectDocuments(ctx context.Context, projectID string) ([]domain.Document, error) {
	rows, err := r.DB.QueryContext(ctx, documentSelect+` JOIN project_documents pd ON pd.document_id=documents.id WHERE pd.project_id=? ORDER BY documents.uploaded_at DESC, documents.id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocuments(rows)
}

const taskSelect = `SELECT tasks.id,tasks.name,tasks.description,tasks.category,tasks.type,tasks.status,tasks.priority,tasks.parameters_json,tasks.result,tasks.error,tasks.tags_json,tasks.scheduled_for,tasks.is_recurring,tasks.recurrence_pattern,tasks.created_at,tasks.updated_at FROM tasks`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var desc, params, result, taskErr, tags, scheduled, recurrence sql.NullString
	var recurring int
	err := scan(&t.ID, &t.Name, &desc, &t.Category, &t.Type, &t.Status, &t.Priority, &params, &result, &taskErr, &tags, &scheduled, &recurring, &recurrence, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if desc.Valid {
		t.Description = desc.String
	}
	if params.Valid {
		t.ParametersJSON = params.String
	}
	if result.Valid {
		t.Result = &result.String
	}
	if taskErr.Valid {
		t.Error = &taskErr.String
	}
	t.Tags = unmarshalTags(tags)
	if scheduled.Valid {
		t.ScheduledFor = &scheduled.String
	}
	t.IsRecurring = recurring != 0
	if recurrence.Valid {
		t.RecurrencePattern = &recurrence.String
	}
	return t, nil
}

func collectTasks(rows *sql.Rows) ([]domain.Task, error) {
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,name,description,category,type,status,priority,parameters_json,result,error,tags_json,scheduled_for,is_recurring,recurrence_pattern,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Name, nullable(t.Description), t.Category, t.Type, t.Status, t.Priority, nullable(t.ParametersJSON),
		nullableStringPtr(t.Result), nullableStringPtr(t.Error), marshalTags(t.Tags), nullableStringPtr(t.ScheduledFor),
		boolToInt(t.IsRecurring), nullableStringPtr(t.RecurrencePattern), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET name=?, description=?, category=?, type=?, status=?, priority=?, parameters_json=?, result=?, error=?, tags_json=?, scheduled_for=?, is_recurring=?, recurrence_pattern=?, updated_at=? WHERE id=?`,
		t.Name, nullable(t.Description), t.Category, t.Type, t.Status, t.Priority, nullable(t.ParametersJSON),
		nullableStringPtr(t.Result), nullableStringPtr(t.Error), marshalTags(t.Tags), nullableStringPtr(t.ScheduledFor),
		boolToInt(t.IsRecurring), nullableStringPtr(t.RecurrencePattern), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, taskSelect+` WHERE id=?`, id).Scan)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, taskSelect+` WHERE id=?`, id).Scan)
}

type TaskFilters struct {
	Status          string
	Category        string
	Priority        int
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.Priority > 0 {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := taskSelect + ` ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountTasksByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, nil
}

func (r Repo) LatestEvents(ctx context.Context, limit int, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]domain.Event, error) {
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// WebhookCursor returns the last event ID acknowledged by the dispatcher.
func (r Repo) WebhookCursor(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT last_event_id FROM webhook_cursor WHERE id=1`).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return id, err
}

func (r Repo) SetWebhookCursor(ctx context.Context, id int64) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE webhook_cursor SET last_event_id=? WHERE id=1`, id)
	return err
}
