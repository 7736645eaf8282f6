package server

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"officedesk/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"active,on_hold,archived"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"active,on_hold,archived"`
}

type CreateTaskRequest struct {
	Name              string         `json:"name"`
	Description       *string        `json:"description,omitempty"`
	Category          string         `json:"category,omitempty" enum:"email,file,pdf,general"`
	Type              string         `json:"type,omitempty"`
	Priority          *int           `json:"priority,omitempty" minimum:"1" maximum:"3"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	ScheduledFor      *string        `json:"scheduled_for,omitempty" format:"date-time"`
	IsRecurring       bool           `json:"is_recurring,omitempty"`
	RecurrencePattern *string        `json:"recurrence_pattern,omitempty"`
	ProjectID         *string        `json:"project_id,omitempty"`
}

type UpdateTaskRequest struct {
	Name         *string        `json:"name,omitempty"`
	Description  *string        `json:"description,omitempty"`
	Priority     *int           `json:"priority,omitempty" minimum:"1" maximum:"3"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	ScheduledFor *string        `json:"scheduled_for,omitempty" format:"date-time"`
}

type CreateUserRequest struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	Role     *string `json:"role,omitempty" enum:"admin,member"`
}

type UpdateUserRequest struct {
	Role     *string `json:"role,omitempty" enum:"admin,member"`
	Password *string `json:"password,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type ChatRequest struct {
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty" enum:"openai,anthropic"`
	Model    string `json:"model,omitempty"`
}

// Response payloads

type ProjectResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status" enum:"active,on_hold,archived"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type ProjectDetailResponse struct {
	ProjectResponse
	Tasks     []TaskResponse     `json:"tasks"`
	Documents []DocumentResponse `json:"documents"`
}

type TaskResponse struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	Category          string         `json:"category" enum:"email,file,pdf,general"`
	Type              string         `json:"type,omitempty"`
	Status            string         `json:"status" enum:"pending,running,completed,failed"`
	Priority          int            `json:"priority"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	Result            *string        `json:"result,omitempty"`
	Error             *string        `json:"error,omitempty"`
	Tags              []string       `json:"tags"`
	ScheduledFor      *string        `json:"scheduled_for,omitempty" format:"date-time"`
	IsRecurring       bool           `json:"is_recurring"`
	RecurrencePattern *string        `json:"recurrence_pattern,omitempty"`
	CreatedAt         string         `json:"created_at" format:"date-time"`
	UpdatedAt         string         `json:"updated_at" format:"date-time"`
}

type DocumentResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type,omitempty"`
	UploadedAt  string `json:"uploaded_at" format:"date-time"`
}

type UserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role" enum:"admin,member"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// CreatedAPIKeyResponse carries the plaintext key exactly once, at
// creation time. Only the hash is stored.
type CreatedAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type ChatResponse struct {
	Reply    string `json:"reply"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedProjects struct {
	Items      []ProjectResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedDocuments struct {
	Items      []DocumentResponse `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// Conversion helpers

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse(p)
}

func mapProjects(in []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(in))
	for _, p := range in {
		out = append(out, projectResponse(p))
	}
	return out
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:                t.ID,
		Name:              t.Name,
		Description:       t.Description,
		Category:          t.Category,
		Type:              t.Type,
		Status:            t.Status,
		Priority:          t.Priority,
		Parameters:        decodeJSONMap(strPtr(t.ParametersJSON)),
		Result:            t.Result,
		Error:             t.Error,
		Tags:              nonNilSlice(t.Tags),
		ScheduledFor:      t.ScheduledFor,
		IsRecurring:       t.IsRecurring,
		RecurrencePattern: t.RecurrencePattern,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func mapTasks(in []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(in))
	for _, t := range in {
		out = append(out, taskResponse(t))
	}
	return out
}

func documentResponse(d domain.Document) DocumentResponse {
	return DocumentResponse{
		ID:          d.ID,
		Filename:    d.Filename,
		SizeBytes:   d.SizeBytes,
		ContentType: d.ContentType,
		UploadedAt:  d.UploadedAt,
	}
}

func mapDocuments(in []domain.Document) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(in))
	for _, d := range in {
		out = append(out, documentResponse(d))
	}
	return out
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		UserID:    k.UserID,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(strPtr(e.Payload)),
	}
}

// Cursor and JSON helpers

func encodeCursor(ts, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(ts + "|" + id))
}

func decodeCursor(cursor string) (ts, id string, ok bool) {
	if cursor == "" {
		return "", "", true
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func decodeJSONMap(raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(*raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func strPtr(in string) *string {
	return &in
}

func stringOrEmpty(in *string) string {
	if in == nil {
		return ""
	}
	return *in
}
