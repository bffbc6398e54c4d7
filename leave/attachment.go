package leave

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// ATTACHMENTS
// =============================================================================

const (
	// MaxAttachmentSize is the per-file upload limit (3 MiB).
	MaxAttachmentSize = 3 << 20

	// MaxAttachmentAttempts bounds the "(n)" suffix retries on name clashes.
	MaxAttachmentAttempts = 20
)

// AttachmentStore is the opaque upload/delete collaborator. References it
// returns are treated as immutable identifiers.
type AttachmentStore interface {
	Upload(ctx context.Context, u Upload) (string, error)
	Delete(ctx context.Context, ref string) error
}

// AttachmentBackend stores objects by name. PutNew must fail with an error
// matching ErrAttachmentExists rather than overwrite an existing object.
type AttachmentBackend interface {
	PutNew(ctx context.Context, name string, u Upload) (ref string, err error)
	Remove(ctx context.Context, ref string) error
}

// Upload describes one file attached to a request.
type Upload struct {
	UserID      generic.UserID
	EmployeeID  string
	ApplyDate   generic.TimePoint
	Sequence    int
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ObjectName returns the storage path for the given attempt:
//
//	<userId>/<applyDate>-<employeeId>-<seq>.<ext>
//	<userId>/<applyDate>-<employeeId>-<seq>(<attempt>).<ext>
func (u Upload) ObjectName(attempt int) string {
	name := fmt.Sprintf("%s-%s-%d", u.ApplyDate, u.EmployeeID, u.Sequence)
	if attempt > 0 {
		name += fmt.Sprintf("(%d)", attempt)
	}
	if i := strings.LastIndex(u.FileName, "."); i >= 0 && i < len(u.FileName)-1 {
		name += "." + u.FileName[i+1:]
	}
	return string(u.UserID) + "/" + name
}

// Attachments implements AttachmentStore over a backend with the
// date-employee-sequence naming scheme and collision retries.
type Attachments struct {
	backend AttachmentBackend
}

func NewAttachments(backend AttachmentBackend) *Attachments {
	return &Attachments{backend: backend}
}

// Upload stores u under the first free name and returns its reference.
func (a *Attachments) Upload(ctx context.Context, u Upload) (string, error) {
	if u.Size > MaxAttachmentSize {
		return "", fmt.Errorf("%w: %q is %d bytes", ErrAttachmentTooLarge, u.FileName, u.Size)
	}
	for attempt := 0; attempt < MaxAttachmentAttempts; attempt++ {
		ref, err := a.backend.PutNew(ctx, u.ObjectName(attempt), u)
		if err == nil {
			return ref, nil
		}
		if !errors.Is(err, ErrAttachmentExists) {
			return "", generic.Collaborator("upload attachment", err)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrAttachmentNameExhausted, u.ObjectName(0))
}

// Delete removes the object behind ref.
func (a *Attachments) Delete(ctx context.Context, ref string) error {
	return generic.Collaborator("delete attachment", a.backend.Remove(ctx, ref))
}
