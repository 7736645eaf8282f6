package domain

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status" enum:"active,on_hold,archived"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Task struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	Category          string   `json:"category" enum:"email,file,pdf,general"`
	Type              string   `json:"type"`
	Status            string   `json:"status" enum:"pending,running,completed,failed"`
	Priority          int      `json:"priority" minimum:"1" maximum:"3"`
	ParametersJSON    string   `json:"parameters_json,omitempty"`
	Result            *string  `json:"result,omitempty"`
	Error             *string  `json:"error,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	ScheduledFor      *string  `json:"scheduled_for,omitempty" format:"date-time"`
	IsRecurring       bool     `json:"is_recurring"`
	RecurrencePattern *string  `json:"recurrence_pattern,omitempty"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	UpdatedAt         string   `json:"updated_at" format:"date-time"`
}

type Document struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	StoredName  string `json:"stored_name"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type,omitempty"`
	UploadedAt  string `json:"uploaded_at" format:"date-time"`
}

type User struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	PasswordDigest string `json:"-"`
	Role           string `json:"role" enum:"admin,member"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	UpdatedAt      string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
