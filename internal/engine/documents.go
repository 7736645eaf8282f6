package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"officedesk/internal/domain"
	"officedesk/internal/events"
	"officedesk/internal/service/files"
)

// DocumentUploadOptions describe one incoming upload.
type DocumentUploadOptions struct {
	Filename    string
	ContentType string
	Content     io.Reader
	ProjectID   string
	ActorID     string
}

func (e Engine) UploadDocument(ctx context.Context, opts DocumentUploadOptions) (domain.Document, error) {
	if e.Store == nil {
		return domain.Document{}, errors.New("file storage not configured")
	}
	clean := files.SanitizeFilename(opts.Filename)
	if clean == "" {
		return domain.Document{}, errors.New("filename is required")
	}
	if e.Config != nil && !e.Config.ExtensionAllowed(clean) {
		return domain.Document{}, fmt.Errorf("file extension not allowed for %q", clean)
	}
	if opts.ProjectID != "" {
		if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
			return domain.Document{}, err
		}
	}
	storedName, size, err := e.Store.Save(clean, opts.Content)
	if err != nil {
		return domain.Document{}, fmt.Errorf("store upload: %w", err)
	}
	now := e.nowStr()
	d := domain.Document{
		ID:          uuid.NewString(),
		Filename:    clean,
		StoredName:  storedName,
		SizeBytes:   size,
		ContentType: opts.ContentType,
		UploadedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		e.Store.Remove(storedName)
		return domain.Document{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDocument(ctx, tx, d); err != nil {
		e.Store.Remove(storedName)
		return domain.Document{}, err
	}
	if opts.ProjectID != "" {
		if err := e.Repo.AttachDocument(ctx, tx, opts.ProjectID, d.ID, now); err != nil {
			e.Store.Remove(storedName)
			return domain.Document{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "document.uploaded", opts.ProjectID, "document", d.ID, opts.ActorID, events.EventPayload{"filename": d.Filename, "size_bytes": d.SizeBytes}); err != nil {
		e.Store.Remove(storedName)
		return domain.Document{}, err
	}
	if err := tx.Commit(); err != nil {
		e.Store.Remove(storedName)
		return domain.Document{}, err
	}
	return d, nil
}

// DeleteDocument removes the metadata row and then the stored file.
// A file already gone from disk is logged and ignored.
func (e Engine) DeleteDocument(ctx context.Context, id, actorID string) error {
	d, err := e.Repo.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteDocument(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "document.deleted", "", "document", id, actorID, events.EventPayload{"filename": d.Filename}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if e.Store != nil {
		if err := e.Store.Remove(d.StoredName); err != nil {
			e.Log.Warnw("remove stored file", "document_id", id, "stored_name", d.StoredName, "error", err)
		}
	}
	return nil
}
