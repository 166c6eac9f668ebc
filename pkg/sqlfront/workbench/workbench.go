package workbench

import (
	"context"
	"log/slog"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database"
)

// Workbench exposes the path-addressed operations used by the CLI and the
// gateway. Every call acquires the handle for its path from the registry;
// callers only ever see plain data.
type Workbench struct {
	registry *database.Registry
	logger   *slog.Logger
}

// New creates a Workbench over registry.
func New(registry *database.Registry, logger *slog.Logger) *Workbench {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workbench{
		registry: registry,
		logger:   logger.With("component", "workbench"),
	}
}

// Registry returns the underlying connection registry.
func (w *Workbench) Registry() *database.Registry {
	return w.registry
}

// Open acquires the database and lists its tables and views.
func (w *Workbench) Open(ctx context.Context, path, key string) (*OpenResult, error) {
	h, err := w.registry.Acquire(ctx, path, key)
	if err != nil {
		return nil, err
	}

	cat, err := ListObjects(ctx, h.DB)
	if err != nil {
		return nil, err
	}

	w.logger.Debug("catalog loaded",
		"path", h.Path,
		"tables", len(cat.Tables),
		"views", len(cat.Views),
	)
	return &OpenResult{Path: h.Path, Catalog: *cat}, nil
}

// Objects returns the full catalog of the database at path.
func (w *Workbench) Objects(ctx context.Context, path, key string) ([]ObjectDescriptor, error) {
	h, err := w.registry.Acquire(ctx, path, key)
	if err != nil {
		return nil, err
	}
	return Objects(ctx, h.DB)
}

// ListColumnsAndRows returns the columns of a table or view together with
// up to limit rows. A zero limit uses the configured default.
func (w *Workbench) ListColumnsAndRows(ctx context.Context, path, name string, limit int, key string) (*TableData, error) {
	h, err := w.registry.Acquire(ctx, path, key)
	if err != nil {
		return nil, err
	}

	cfg := w.registry.Config()
	if limit == 0 {
		limit = cfg.DefaultRowLimit
	}

	data, err := ReadRows(ctx, h.DB, name, limit, cfg.MaxRowLimit)
	if err != nil {
		return nil, err
	}
	if data.Truncated {
		w.logger.Debug("row limit clamped", "path", h.Path, "object", name, "requested", limit, "limit", data.Limit)
	}
	return data, nil
}

// RunStatement executes raw SQL and returns rows or a mutation summary.
func (w *Workbench) RunStatement(ctx context.Context, path, stmt, key string) (*StatementResult, error) {
	h, err := w.registry.Acquire(ctx, path, key)
	if err != nil {
		return nil, err
	}

	kind := Classify(stmt)
	w.logger.Debug("executing statement", "path", h.Path, "kind", kind, "sql", stmt)

	return Execute(ctx, h.DB, stmt, w.registry.Config().MaxRowLimit)
}

// ObjectDefinition returns the CREATE statement of a schema object.
func (w *Workbench) ObjectDefinition(ctx context.Context, path, name, key string) (string, error) {
	h, err := w.registry.Acquire(ctx, path, key)
	if err != nil {
		return "", err
	}
	return ObjectDefinition(ctx, h.DB, name)
}

// EditRows applies a batch of deletes, updates, and inserts atomically.
func (w *Workbench) EditRows(ctx context.Context, path string, req EditRequest) (*EditResult, error) {
	h, err := w.registry.Acquire(ctx, path, req.Key)
	if err != nil {
		return nil, err
	}

	result, err := ApplyEdits(ctx, h.DB, req)
	if err != nil {
		w.logger.Warn("edit failed", "path", h.Path, "table", req.Table, "error", err)
		return nil, err
	}

	w.logger.Info("edit committed",
		"path", h.Path,
		"table", req.Table,
		"deleted", result.Deleted,
		"updated", result.Updated,
		"inserted", result.Inserted,
	)
	return result, nil
}

// ReleaseConnection closes the cached session for path. Unknown paths
// are a no-op.
func (w *Workbench) ReleaseConnection(path string) error {
	return w.registry.Release(path)
}

// Connections lists the open sessions.
func (w *Workbench) Connections() []database.HandleInfo {
	return w.registry.List()
}
