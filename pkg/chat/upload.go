package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MaxUploadBytes is the largest file the uploader accepts. The backend
// enforces the same limit authoritatively.
const MaxUploadBytes = 15 << 20

// File is a local file selected for upload.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Reader      io.Reader
}

// Uploader turns a local PDF into a shareable session path.
type Uploader struct {
	api *API

	mu        sync.Mutex
	uploading bool
}

// NewUploader constructs an uploader over api.
func NewUploader(api *API) *Uploader {
	return &Uploader{api: api}
}

// Uploading reports whether a call to Upload is in flight. Callers use
// it to gate re-entry; the uploader itself does not serialize calls.
func (u *Uploader) Uploading() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.uploading
}

// Upload validates file, posts it to the gateway and returns the
// session path for the created conversation. Validation failures
// return a *ValidationError before any request is made; the file
// reader is not consumed until validation passes, so the caller keeps
// the file for a retry.
func (u *Uploader) Upload(ctx context.Context, file File) (string, error) {
	if file.Size > MaxUploadBytes {
		return "", &ValidationError{Reason: fmt.Sprintf("file exceeds the %dMB limit", MaxUploadBytes>>20)}
	}
	if file.ContentType != "application/pdf" {
		return "", &ValidationError{Reason: "only PDF files are supported"}
	}
	u.setUploading(true)
	defer u.setUploading(false)

	created, err := u.api.CreateSession(ctx, file.Name, file.Reader, projectLabel(file.Name))
	if err != nil {
		return "", err
	}
	return BuildChatPath(created.OwnerHash, created.ProjectID), nil
}

func (u *Uploader) setUploading(v bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploading = v
}

// projectLabel derives the display name for a session: the file name
// with its .pdf suffix stripped.
func projectLabel(filename string) string {
	if strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return filename[:len(filename)-len(".pdf")]
	}
	return filename
}
