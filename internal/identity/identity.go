// Package identity resolves the stable client identity sent with every
// gated request.
//
// Resolution order: a previously persisted id wins, then the server's
// bootstrap endpoint, then a locally generated UUID. Whatever is resolved
// is persisted so the same identity survives process restarts.
package identity

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Identity is the resolved client identity. Immutable after resolution.
type Identity struct {
	ID string
}

// Bootstrapper fetches a server-assigned identity. Implemented by the
// transport client; the endpoint is exempt from the version gate.
type Bootstrapper interface {
	BootstrapIdentity(ctx context.Context) (string, error)
}

// Resolve returns the client identity, consulting the persisted file first.
// Nothing here is fatal: a failed bootstrap falls back to a generated UUID
// and a failed persist still yields a usable (if ephemeral) identity.
func Resolve(ctx context.Context, b Bootstrapper, path string) Identity {
	logger := slog.With("component", "identity")

	if id := loadPersisted(path); id != "" {
		logger.Debug("Using persisted identity", "path", path)
		return Identity{ID: id}
	}

	id, err := b.BootstrapIdentity(ctx)
	if err != nil || id == "" {
		id = uuid.NewString()
		logger.Warn("Identity bootstrap failed, generated local identity", "error", err)
	} else {
		logger.Info("Identity assigned by server")
	}

	persist(path, id, logger)
	return Identity{ID: id}
}

func loadPersisted(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func persist(path, id string, logger *slog.Logger) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		logger.Warn("Could not create identity directory", "path", path, "error", err)
		return
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		logger.Warn("Could not persist identity", "path", path, "error", err)
	}
}
