package web

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/carimport/internal/core"
	"github.com/JonMunkholm/carimport/internal/logging"
)

// errInvalidOption is returned for unsupported delimiter or encoding values.
var errInvalidOption = errors.New("invalid import option")

// multipartMemory is the part of a multipart upload held in memory; the rest
// spills to temporary files.
const multipartMemory = 8 << 20

// Response types

// ImportResponse is the JSON summary of a committed import.
type ImportResponse struct {
	ImportID  string   `json:"importId"`
	Table     string   `json:"table"`
	FileName  string   `json:"fileName"`
	Checksum  string   `json:"checksum"`
	TotalRows int      `json:"totalRows"`
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
	Duration  int64    `json:"durationMs"`
}

// TableResponse describes a registered table.
type TableResponse struct {
	Key          string   `json:"key"`
	Label        string   `json:"label"`
	Group        string   `json:"group"`
	IdentityKeys []string `json:"identityKeys"`
	Columns      int      `json:"columns"`
}

// ColumnResponse describes one column of a table schema.
type ColumnResponse struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Size     int    `json:"size,omitempty"`
}

// SchemaResponse is the column classification of a table.
type SchemaResponse struct {
	TableResponse
	Fields []ColumnResponse `json:"fields"`
}

func newImportResponse(r *core.Result) ImportResponse {
	return ImportResponse{
		ImportID:  r.ImportID,
		Table:     r.TableKey,
		FileName:  r.FileName,
		Checksum:  r.Checksum,
		TotalRows: r.TotalRows,
		Created:   r.Created,
		Updated:   r.Updated,
		Skipped:   r.Skipped,
		Errors:    r.Errors(),
		Duration:  r.Duration.Milliseconds(),
	}
}

func newTableResponse(def core.TableDefinition) TableResponse {
	return TableResponse{
		Key:          def.Info.Key,
		Label:        def.Info.Label,
		Group:        def.Info.Group,
		IdentityKeys: def.Info.IdentityKeys,
		Columns:      len(def.FieldSpecs),
	}
}

// handleIndex renders the upload form.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), 10)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := uploadPage(core.All(), s.cfg.Import.Table, runs).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render upload page", "error", err)
	}
}

// handleImportForm imports the file posted by the upload form and renders the summary.
func (s *Server) handleImportForm(w http.ResponseWriter, r *http.Request) {
	result, err := s.importUpload(w, r, "")
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := summaryPage(result).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render summary", "error", err)
	}
}

// handleImportAPI imports a multipart "file" into the table named in the path.
func (s *Server) handleImportAPI(w http.ResponseWriter, r *http.Request) {
	result, err := s.importUpload(w, r, chi.URLParam(r, "tableKey"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, newImportResponse(result))
}

// importUpload runs one import batch for a multipart request. tableKey falls
// back to the "table" form field and then to the configured default.
func (s *Server) importUpload(w http.ResponseWriter, r *http.Request, tableKey string) (*core.Result, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errFileTooLarge
		}
		return nil, fmt.Errorf("%w: %v", errNoFile, err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errNoFile
	}
	defer file.Close()

	if header.Size > s.cfg.Import.MaxFileSize {
		return nil, errFileTooLarge
	}

	if tableKey == "" {
		tableKey = r.FormValue("table")
	}
	if tableKey == "" {
		tableKey = s.cfg.Import.Table
	}
	if _, ok := core.Get(tableKey); !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownTable, tableKey)
	}

	opts, err := s.importOptions(r.MultipartForm)
	if err != nil {
		return nil, err
	}

	if !s.limiter.TryAcquire() {
		logging.FromContext(r.Context()).Info("waiting for import slot", "active", s.limiter.Active())
		if err := s.limiter.Acquire(r.Context()); err != nil {
			if errors.Is(err, core.ErrTooManyImports) {
				w.Header().Set("Retry-After", "5")
			}
			return nil, err
		}
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(r.Context(), s.importTimeout())
	defer cancel()

	return core.NewImporter(s.store, opts).ImportReader(ctx, tableKey, header.Filename, file, header.Size)
}

// importOptions applies the per-request delimiter and encoding overrides.
func (s *Server) importOptions(form *multipart.Form) (core.Options, error) {
	opts := s.cfg.ImportOptions()
	opts.Runs = s.store

	value := func(name string) string {
		if v := form.Value[name]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	if d := value("delimiter"); d != "" {
		delim, err := core.ParseDelimiter(d)
		if err != nil {
			return opts, fmt.Errorf("%w: %v", errInvalidOption, err)
		}
		opts.Delimiter = delim
	}
	if enc := value("encoding"); enc != "" {
		if !core.SupportedEncoding(enc) {
			return opts, fmt.Errorf("%w: unsupported encoding %q", errInvalidOption, enc)
		}
		opts.Encoding = enc
	}
	return opts, nil
}

// handleListTables returns the registered tables.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	defs := core.All()
	out := make([]TableResponse, len(defs))
	for i, def := range defs {
		out[i] = newTableResponse(def)
	}
	writeJSON(w, out)
}

// handleSchema returns the column classification of one table.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	tableKey := chi.URLParam(r, "tableKey")
	def, ok := core.Get(tableKey)
	if !ok {
		respondError(w, r, fmt.Errorf("%w: %s", core.ErrUnknownTable, tableKey))
		return
	}

	resp := SchemaResponse{
		TableResponse: newTableResponse(def),
		Fields:        make([]ColumnResponse, len(def.FieldSpecs)),
	}
	for i, spec := range def.FieldSpecs {
		resp.Fields[i] = ColumnResponse{
			Name:     spec.Name,
			Type:     spec.Type.String(),
			Required: spec.Required,
			Size:     spec.Size,
		}
	}
	writeJSON(w, resp)
}

// handleListImports returns the most recent import runs.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if runs == nil {
		runs = []core.ImportRun{}
	}
	writeJSON(w, runs)
}

// handleHealth reports database reachability and import slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]any{
		"status":  "ok",
		"imports": s.limiter.Status(),
	}
	if err := s.store.Ping(ctx); err != nil {
		logging.FromContext(r.Context()).Warn("health check: database unreachable", "error", err)
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
	}
	writeJSONStatus(w, status, body)
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
