// Package archive keeps revisions of protocol documents in a blob store.
//
// Every Save writes a new immutable object under
// protocols/<name>/<revision>.<format>. Revision IDs are version 7 UUIDs, so
// lexical key order is save order and the last key is the latest revision.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"graphmix/internal/blob"
	"graphmix/internal/ctxlog"
	"graphmix/pkg/domain"
	"graphmix/pkg/protocol"

	"github.com/google/uuid"
)

const prefix = "protocols"

// ErrInvalidName rejects names that cannot form a single key segment.
var ErrInvalidName = errors.New("archive: invalid protocol name")

// Revision identifies one stored document.
type Revision struct {
	Name    string          `json:"name"`
	ID      string          `json:"id"`
	Key     string          `json:"key"`
	Format  protocol.Format `json:"format"`
	Size    int64           `json:"size_bytes"`
	SavedAt time.Time       `json:"saved_at"`
}

// Archive stores protocol documents. It is safe for concurrent use when the
// underlying store is.
type Archive struct {
	store blob.Store
	now   func() time.Time
}

// New wraps store.
func New(store blob.Store) *Archive {
	return &Archive{store: store, now: time.Now}
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func contentType(f protocol.Format) (string, error) {
	switch f {
	case protocol.JSON:
		return "application/json", nil
	case protocol.YAML:
		return "application/yaml", nil
	default:
		return "", fmt.Errorf("archive: unknown format %q", f)
	}
}

func dir(name string) string { return path.Join(prefix, name) + "/" }

// Save encodes p in format f and stores it as a new revision of name.
func (a *Archive) Save(ctx context.Context, name string, p *protocol.Protocol, f protocol.Format) (Revision, error) {
	if err := checkName(name); err != nil {
		return Revision{}, err
	}
	if f == "" {
		f = protocol.JSON
	}
	ct, err := contentType(f)
	if err != nil {
		return Revision{}, err
	}
	var buf bytes.Buffer
	if err := p.Encode(&buf, f); err != nil {
		return Revision{}, fmt.Errorf("encode %s: %w", name, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Revision{}, err
	}
	saved := a.now().UTC()
	key := dir(name) + id.String() + "." + string(f)
	info, err := a.store.Put(ctx, key, &buf, blob.PutOptions{
		ContentType: ct,
		Metadata: map[string]string{
			"protocol": name,
			"saved-at": saved.Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return Revision{}, fmt.Errorf("store %s: %w", key, err)
	}
	ctxlog.FromContext(ctx).InfoContext(ctx, "protocol archived", "name", name, "key", key, "size", info.Size)
	return Revision{Name: name, ID: id.String(), Key: key, Format: f, Size: info.Size, SavedAt: saved}, nil
}

func revisionOf(name string, info blob.Info) (Revision, bool) {
	base := path.Base(info.Key)
	ext := path.Ext(base)
	id := strings.TrimSuffix(base, ext)
	f := protocol.Format(strings.TrimPrefix(ext, "."))
	if _, err := contentType(f); err != nil {
		return Revision{}, false
	}
	if _, err := uuid.Parse(id); err != nil {
		return Revision{}, false
	}
	rev := Revision{Name: name, ID: id, Key: info.Key, Format: f, Size: info.Size, SavedAt: info.LastModified}
	if ts, err := time.Parse(time.RFC3339Nano, info.Metadata["saved-at"]); err == nil {
		rev.SavedAt = ts
	}
	return rev, true
}

// List returns the revisions of name, oldest first. Unrecognised keys under
// the name are skipped.
func (a *Archive) List(ctx context.Context, name string) ([]Revision, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	infos, err := a.store.List(ctx, dir(name))
	if err != nil {
		return nil, err
	}
	out := make([]Revision, 0, len(infos))
	for _, info := range infos {
		if rev, ok := revisionOf(name, info); ok {
			out = append(out, rev)
		}
	}
	return out, nil
}

// Load decodes a specific revision.
func (a *Archive) Load(ctx context.Context, rev Revision) (*protocol.Protocol, error) {
	_, rc, err := a.store.Get(ctx, rev.Key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, domain.NotFoundError{Entity: "protocol revision", Name: rev.Key}
		}
		return nil, err
	}
	defer rc.Close()
	p, err := protocol.Decode(rc, rev.Format)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", rev.Key, err)
	}
	return p, nil
}

// Latest loads the newest revision of name.
func (a *Archive) Latest(ctx context.Context, name string) (*protocol.Protocol, Revision, error) {
	revs, err := a.List(ctx, name)
	if err != nil {
		return nil, Revision{}, err
	}
	if len(revs) == 0 {
		return nil, Revision{}, domain.NotFoundError{Entity: "protocol", Name: name}
	}
	rev := revs[len(revs)-1]
	p, err := a.Load(ctx, rev)
	return p, rev, err
}
