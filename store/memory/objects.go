package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Objects is an in-memory leave.AttachmentBackend. References have the same
// shape as the object store's: <base>/<bucket>/<name>.
type Objects struct {
	mu      sync.Mutex
	base    string
	bucket  string
	objects map[string][]byte
}

func NewObjects(base, bucket string) *Objects {
	return &Objects{base: strings.TrimRight(base, "/"), bucket: bucket, objects: make(map[string][]byte)}
}

func (o *Objects) PutNew(ctx context.Context, name string, u leave.Upload) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.objects[name]; ok {
		return "", fmt.Errorf("%w: %s", leave.ErrAttachmentExists, name)
	}
	var buf bytes.Buffer
	if u.Body != nil {
		if _, err := io.Copy(&buf, u.Body); err != nil {
			return "", err
		}
	}
	o.objects[name] = buf.Bytes()
	return o.base + "/" + o.bucket + "/" + name, nil
}

func (o *Objects) Remove(ctx context.Context, ref string) error {
	_, name, ok := strings.Cut(ref, "/"+o.bucket+"/")
	if !ok {
		return fmt.Errorf("%w: reference %q is not in bucket %s", generic.ErrValidation, ref, o.bucket)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.objects[name]; !ok {
		return &generic.NotFoundError{Kind: "attachment", ID: name}
	}
	delete(o.objects, name)
	return nil
}

// Names lists stored object names, sorted.
func (o *Objects) Names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.objects))
	for name := range o.objects {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
