package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/database/backends"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/workbench"
)

// Response codes carried in the envelope next to the HTTP status.
const (
	codeOK           = 0
	codeBadRequest   = 1000
	codeConnection   = 1001
	codeQuery        = 1002
	codeTransaction  = 1003
	codeNotFound     = 1004
	codeUnauthorized = 1401
	codeNotAllowed   = 1405
	codeRateLimited  = 1429
	codeInternal     = 1500
)

const maxBodyBytes = 8 << 20

// envelope wraps every response body.
type envelope struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type openRequest struct {
	Path     string `json:"path"`
	Key      string `json:"key,omitempty"`
	Remember bool   `json:"remember,omitempty"`
}

type rowsRequest struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	Limit int    `json:"limit,omitempty"`
	Key   string `json:"key,omitempty"`
}

type execRequest struct {
	Path string `json:"path"`
	SQL  string `json:"sql"`
	Key  string `json:"key,omitempty"`
}

type definitionRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Key  string `json:"key,omitempty"`
}

type editRequest struct {
	Path string `json:"path"`
	workbench.EditRequest
}

type releaseRequest struct {
	Path string `json:"path"`
}

type historyRequest struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Encrypted bool   `json:"encrypted"`
}

type notesRequest struct {
	Text string `json:"text"`
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (g *Gateway) writeOK(w http.ResponseWriter, data any) {
	g.writeJSON(w, http.StatusOK, envelope{Success: true, Code: codeOK, Data: data})
}

func (g *Gateway) writeError(w http.ResponseWriter, status, code int, msg string, data any) {
	g.writeJSON(w, status, envelope{Success: false, Code: code, Message: msg, Data: data})
}

// writeFailure maps a workbench error onto the envelope codes.
func (g *Gateway) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var (
		connErr *database.ConnectionError
		nfErr   *database.NotFoundError
		qErr    *database.QueryError
		txErr   *database.TransactionError
	)

	switch {
	case errors.As(err, &connErr):
		g.writeError(w, http.StatusBadRequest, codeConnection, err.Error(), nil)
	case errors.As(err, &nfErr):
		g.writeError(w, http.StatusNotFound, codeNotFound, err.Error(), nil)
	case errors.As(err, &qErr):
		g.writeError(w, http.StatusBadRequest, codeQuery, err.Error(), nil)
	case errors.As(err, &txErr):
		g.writeError(w, http.StatusConflict, codeTransaction, err.Error(), map[string]any{
			"phase":           txErr.Phase,
			"state_undefined": txErr.StateUndefined(),
		})
	default:
		g.logger.Error("request failed", "path", r.URL.Path, "request_id", RequestID(r.Context()), "error", err)
		g.writeError(w, http.StatusInternalServerError, codeInternal, "internal error", nil)
	}
}

// allow writes 405 unless r uses one of methods.
func (g *Gateway) allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	g.writeError(w, http.StatusMethodNotAllowed, codeNotAllowed, "method not allowed", nil)
	return false
}

// decode reads a JSON body into v. Numbers stay json.Number so integer
// column values keep their precision.
func (g *Gateway) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		g.writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error(), nil)
		return false
	}
	return true
}

func (g *Gateway) requirePath(w http.ResponseWriter, path string) bool {
	if path == "" {
		g.writeError(w, http.StatusBadRequest, codeBadRequest, "path is required", nil)
		return false
	}
	return true
}

// resolveKey falls back to the keystore when the request carries no key.
func (g *Gateway) resolveKey(path, key string) string {
	if key != "" || g.keys == nil {
		return key
	}
	canonical, err := database.CanonicalPath(path)
	if err != nil {
		return ""
	}
	stored, err := g.keys.Get(canonical)
	if err != nil {
		return ""
	}
	return stored
}

// handleHealth implements GET /health
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !g.allow(w, r, http.MethodGet) {
		return
	}
	g.writeOK(w, map[string]any{
		"status":      "ok",
		"version":     version,
		"driver":      backends.DriverName(),
		"uptime":      time.Since(g.startedAt).Round(time.Second).String(),
		"connections": g.workbench.Registry().Status(r.Context()),
	})
}

// handleOpen implements POST /api/open
func (g *Gateway) handleOpen(w http.ResponseWriter, r *http.Request) {
	if !g.allow(w, r, http.MethodPost) {
		return
	}
	var req openRequest
	if !g.decode(w, r, &req) || !g.requirePath(w, req.Path) {
		return
	}

	key := g.resolveKey(req.Path, req.Key)
	result, err := g.workbench.Open(r.Context(), req.Path, key)
	if err != nil {
		g.writeFailure(w, r, err)
		return
	}

	if g.history != nil {
		if err := g.history.Add("", result.Path, key != ""); err != nil {
			g.logger.Warn("failed to record history", "path", result.Path, "error", err)
		}
	}
	if req.Remember && req.Key != "" && g.keys != nil {
		if err := g.keys.Set(result.Path, req.Key); err != nil {
			g.logger.Warn("failed to store key", "path", result.Path, "keystore", g.keys.Name(), "error", err)
		}
	}

	g.writeOK(w, result)
}

// handleRows implements POST /api/rows
func (g *Gateway) handleRows(w http.ResponseWriter, r *http.Request) {
	if !g.allow(w, r, http.MethodPost) {
		return
	}
	var req rowsRequest
	if !g.decode(w, r, &req) || !g.requirePath(w, req.Path) {
		return
	}
	if req.Name == "" {
		g.writeError(w, http.StatusBadRequest, codeBadRequest, "name is required", nil)
		return
	}

	data, err := g.workbench.ListColumnsAndRows(r.Context(), req.Path, req.Name, req.Limit, g.resolveKey(req.Path, req.Key))
	if err != nil {
		g.writeFailure(w, r, err)
		return
	}
	g.writeOK(w, data)
}

// handleExec implements POST /api/exec
func (g *Gateway) handleExec(w http.ResponseWriter, r *http.Request) {
	if !g.allow(w, r, http.MethodPost) {
		return
	}
	var req execRequest
	if !g.decode(w, r, &req) || !g.requirePath(w, req.Path) {
		return
	}

	result, err := g.workbench.RunStatement(r.Context(), req.Path, req.SQL, g.resolveKey(req.Path, req.Key))
	if err != nil {
		g.writeFailure(w, r, err)
		return
	}
	g.writeOK(w, result)
}

// handleDefinition implements POST /api/definition
func (g *Gateway) handleDefinition(w http.ResponseWriter, r *http.Request) {
	if !g.allow(w, r, http.MethodPost) {
		return
	}
	var req definitionRequest
	if !g.decode(w, r, &req) || !g.requirePath(w, req.Path) {
		return
	}

	sql, err := g.workbench.ObjectDefinition(r.Context(), req.Path, req.Name, g.resolveKey(req.Path, req.Key))
	if err != nil {
		g.writeFailure(w, r, err)
		return
	}
	g.writeOK(w, map[string]string{"name": req.Name, "sql": sql})
}

// handleEdit implements POST /api/edit
func (g *Gateway) handleEdit(w http.ResponseWriter, r *http.Request) {
	if !g.allow(w, r, http.MethodPost) {
		return
	}
	var req editRequest
	if !g.decode(w, r, &req) || !g.requirePath(w, req.Path) {
		return
	}

	edit := req.EditRequest
	edit.Key = g.resolveKey(req.Path, edit.Key)

	result, err := g.workbench.EditRows(r.Context(), req.Path, edit)
	if err != nil {
		g.writeFailure(w, r, err)
		return
	}
	g.writeOK(w, result)
}

// handleRelease implements POST /api/release
func (g *Gateway) handleRelease(w http.ResponseWriter, r *http.Request) {
	if !g.allow(w, r, http.MethodPost) {
		return
	}
	var req releaseRequest
	if !g.decode(w, r, &req) || !g.requirePath(w, req.Path) {
		return
	}

	if err := g.workbench.ReleaseConnection(req.Path); err != nil {
		g.writeFailure(w, r, err)
		return
	}
	g.writeOK(w, nil)
}

// handleConnections implements GET /api/connections
func (g *Gateway) handleConnections(w http.ResponseWriter, r *http.Request) {
	if !g.allow(w, r, http.MethodGet) {
		return
	}
	g.writeOK(w, g.workbench.Connections())
}

// handleHistory implements GET, POST and DELETE /api/history.
// DELETE with ?index=N removes one entry (and its stored key); without
// an index it clears the list.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	if g.history == nil {
		g.writeError(w, http.StatusNotFound, codeNotFound, "history disabled", nil)
		return
	}

	switch r.Method {
	case http.MethodGet:
		entries, err := g.history.List()
		if err != nil {
			g.writeFailure(w, r, err)
			return
		}
		g.writeOK(w, entries)

	case http.MethodPost:
		var req historyRequest
		if !g.decode(w, r, &req) || !g.requirePath(w, req.Path) {
			return
		}
		if err := g.history.Add(req.Name, req.Path, req.Encrypted); err != nil {
			g.writeFailure(w, r, err)
			return
		}
		g.writeOK(w, nil)

	case http.MethodDelete:
		raw := r.URL.Query().Get("index")
		if raw == "" {
			if err := g.history.Clear(); err != nil {
				g.writeFailure(w, r, err)
				return
			}
			g.writeOK(w, nil)
			return
		}

		index, err := strconv.Atoi(raw)
		if err != nil {
			g.writeError(w, http.StatusBadRequest, codeBadRequest, "index must be an integer", nil)
			return
		}
		removed, err := g.history.Remove(index)
		if err != nil {
			g.writeFailure(w, r, err)
			return
		}
		if removed != "" && g.keys != nil {
			if err := g.keys.Delete(removed); err != nil {
				g.logger.Warn("failed to delete stored key", "path", removed, "error", err)
			}
		}
		g.writeOK(w, map[string]string{"removed": removed})

	default:
		g.allow(w, r)
	}
}

// handleNotes implements GET and PUT /api/notes
func (g *Gateway) handleNotes(w http.ResponseWriter, r *http.Request) {
	if g.notes == nil {
		g.writeError(w, http.StatusNotFound, codeNotFound, "notes disabled", nil)
		return
	}

	switch r.Method {
	case http.MethodGet:
		text, err := g.notes.Load()
		if err != nil {
			g.writeFailure(w, r, err)
			return
		}
		g.writeOK(w, notesRequest{Text: text})

	case http.MethodPut:
		var req notesRequest
		if !g.decode(w, r, &req) {
			return
		}
		if err := g.notes.Save(req.Text); err != nil {
			g.writeFailure(w, r, err)
			return
		}
		g.writeOK(w, nil)

	default:
		g.allow(w, r)
	}
}
