// Package container maps UI sessions to the per-user dev container they
// belong to.
package container

import (
	"context"
	"fmt"
	"strings"

	"github.com/nikolanovoselec/codeflare-sub001/model"
)

// Handle identifies one user's container and where to reach it. Addr is
// empty while the container has not registered itself yet.
type Handle struct {
	ID     string // platform job / service name
	Addr   string // base URL of the container's internal API
	Bucket string // the user's R2 workspace bucket
	Email  string
}

// Runtime is the platform "get state" call.
type Runtime interface {
	ContainerState(ctx context.Context, containerID string) (string, error)
}

// Resolver maps a session ID to a container handle.
type Resolver interface {
	Resolve(ctx context.Context, sessionID string) (*Handle, error)
}

// SessionStore is the slice of the session store the resolver needs.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
}

// AddressLookup finds a container's internal address by service name.
type AddressLookup interface {
	ServiceAddress(service string) (string, error)
}

// CatalogResolver resolves handles from the session store plus the service
// catalog. Container IDs and bucket names derive deterministically from the
// user's email, so every session of one user lands on the same container.
type CatalogResolver struct {
	Sessions SessionStore
	Catalog  AddressLookup
}

func (r *CatalogResolver) Resolve(ctx context.Context, sessionID string) (*Handle, error) {
	sess, err := r.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	h := &Handle{
		ID:     ContainerID(sess.Email),
		Bucket: BucketName(sess.Email),
		Email:  sess.Email,
	}

	// A missing catalog entry is normal while the container is still being
	// created; the runtime state lookup decides what to report.
	if addr, err := r.Catalog.ServiceAddress(h.ID); err == nil {
		h.Addr = "http://" + addr
	}
	return h, nil
}

// ContainerID derives the platform job name for a user's container.
func ContainerID(email string) string {
	return "dev-" + slug(email)
}

// BucketName derives the user's R2 workspace bucket name.
func BucketName(email string) string {
	return "workspace-" + slug(email)
}

func slug(email string) string {
	s := strings.ToLower(email)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
