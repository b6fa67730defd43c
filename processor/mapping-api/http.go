package mappingapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/c360studio/ontomap/export"
	"github.com/c360studio/ontomap/mapping"
	"github.com/c360studio/ontomap/ontology"
	"github.com/c360studio/ontomap/source"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxRequestBodySize limits JSON bodies to prevent DoS.
const maxRequestBodySize = 16 << 20 // 16 MB

// RegisterHTTPHandlers registers all handlers. The prefix is the path
// segment for API routes without a trailing slash (e.g. "api").
// Handlers are registered as:
//
//	GET  /health
//	GET  /metrics
//	GET  <prefix>/version
//	GET  <prefix>/skills
//	POST <prefix>/tbox/parse
//	POST <prefix>/data/parse
//	POST <prefix>/match
//	POST <prefix>/abox
//	POST <prefix>/r2rml
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc("/health", c.handleHealth)
	if c.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(c.metrics.PrometheusRegistry(), promhttp.HandlerOpts{}))
	}

	mux.HandleFunc(prefix+"version", c.handleVersion)
	mux.HandleFunc(prefix+"skills", c.handleSkills)
	mux.HandleFunc(prefix+"tbox/parse", c.handleParseTBox)
	mux.HandleFunc(prefix+"data/parse", c.handleParseData)
	mux.HandleFunc(prefix+"match", c.handleMatch)
	mux.HandleFunc(prefix+"abox", c.handleABox)
	mux.HandleFunc(prefix+"r2rml", c.handleR2RML)
}

// withCORS allows any origin and answers preflight requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ----------------------------------------------------------------------------
// GET /health, GET /api/version, GET /api/skills
// ----------------------------------------------------------------------------

func (c *Component) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionResponse is the response body for GET /api/version.
type VersionResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (c *Component) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, VersionResponse{Name: "ontomap", Version: c.config.Version})
}

// SkillsResponse is the response body for GET /api/skills.
type SkillsResponse struct {
	Skills  []string `json:"skills"`
	Default string   `json:"default"`
}

func (c *Component) handleSkills(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := SkillsResponse{Skills: []string{}, Default: c.config.SkillName}
	if c.skills != nil {
		resp.Skills = c.skills.List()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ----------------------------------------------------------------------------
// POST /api/tbox/parse
// ----------------------------------------------------------------------------

// handleParseTBox parses one uploaded ontology document (form field "file").
func (c *Component) handleParseTBox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	files, ok := c.readUploads(w, r, "file")
	if !ok {
		return
	}

	tbox, err := ontology.Parse(files[0].Content, files[0].Name)
	if err != nil {
		c.logger.Warn("TBox parse failed", "file", files[0].Name, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c.logger.Info("Parsed TBox",
		"file", files[0].Name,
		"properties", len(tbox.Properties),
		"classes", len(tbox.Classes),
		"object_properties", len(tbox.ObjectProperties))
	writeJSON(w, http.StatusOK, tbox)
}

// ----------------------------------------------------------------------------
// POST /api/data/parse
// ----------------------------------------------------------------------------

// ParseDataResponse is the response body for POST /api/data/parse.
type ParseDataResponse struct {
	Tables []source.TableItem `json:"tables"`
}

// handleParseData parses uploaded tabular files (form field "files").
func (c *Component) handleParseData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	files, ok := c.readUploads(w, r, "files")
	if !ok {
		return
	}

	tables, err := c.sources.ParseFiles(files)
	if err != nil {
		c.logger.Warn("Data parse failed", "files", len(files), "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c.logger.Info("Parsed data files", "files", len(files), "tables", len(tables))
	writeJSON(w, http.StatusOK, ParseDataResponse{Tables: tables})
}

// readUploads reads every multipart file under field. On failure it has
// already written the response.
func (c *Component) readUploads(w http.ResponseWriter, r *http.Request, field string) ([]source.File, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, c.config.MaxUploadSize)
	if err := r.ParseMultipartForm(c.config.MaxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return nil, false
	}

	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("no files in form field %q", field))
		return nil, false
	}

	files := make([]source.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("open %s: %v", fh.Filename, err))
			return nil, false
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("read %s: %v", fh.Filename, err))
			return nil, false
		}
		files = append(files, source.File{Name: fh.Filename, Content: data})
	}
	return files, true
}

// ----------------------------------------------------------------------------
// POST /api/match
// ----------------------------------------------------------------------------

// MatchRequest is the request body for POST /api/match.
type MatchRequest struct {
	Properties []ontology.PropertyItem `json:"properties"`

	// Tables are table records as sent by the client. Records and rows
	// that are not objects are skipped.
	Tables []any `json:"tables"`

	// Mode is heuristic or llm. Empty uses the server default.
	Mode string `json:"mode,omitempty"`

	// Threshold defaults to the server threshold when absent.
	Threshold *float64 `json:"threshold,omitempty"`

	// Skill overrides the configured skill document in llm mode.
	Skill string `json:"skill,omitempty"`
}

// MatchResponse is the response body for POST /api/match.
type MatchResponse struct {
	Matches []mapping.MatchResult `json:"matches"`
}

func (c *Component) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req MatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = c.config.Mode
	}
	threshold := c.config.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	matchReq := mapping.Request{
		Properties: req.Properties,
		Tables:     source.Normalize(req.Tables),
		Mode:       mapping.Mode(mode),
		Threshold:  threshold,
	}
	if req.Skill != "" && c.skills != nil {
		if err := c.skills.Ensure(req.Skill); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if matchReq.Mode == mapping.ModeLLM {
		matchReq.SkillDoc = c.skillDoc(req.Skill)
	}

	results, err := c.engine.Match(r.Context(), matchReq)
	switch {
	case err == nil:
	case mapping.IsConfigurationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case mapping.IsTransportFailure(err):
		writeError(w, http.StatusBadGateway, err.Error())
		return
	default:
		c.logger.Error("Match failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if results == nil {
		results = []mapping.MatchResult{}
	}
	writeJSON(w, http.StatusOK, MatchResponse{Matches: results})
}

// skillDoc loads the named skill, or the configured one. A missing skill
// is logged and matching proceeds with the built-in instructions.
func (c *Component) skillDoc(name string) string {
	if name == "" {
		name = c.config.SkillName
	}
	if c.skills == nil || name == "" {
		return ""
	}
	doc, err := c.skills.Doc(name)
	if err != nil {
		c.logger.Warn("Skill document unavailable", "skill", name, "error", err)
		return ""
	}
	return doc
}

// ----------------------------------------------------------------------------
// POST /api/abox
// ----------------------------------------------------------------------------

// ABoxRequest is the request body for POST /api/abox.
type ABoxRequest struct {
	Tables  []any                 `json:"tables"`
	Mapping []export.MappingItem  `json:"mapping"`
	Matches []mapping.MatchResult `json:"matches,omitempty"`
	BaseIRI string                `json:"base_iri,omitempty"`
	Format  string                `json:"format,omitempty"`
	Save    bool                  `json:"save,omitempty"`
}

func (c *Component) handleABox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ABoxRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	format, err := export.ParseFormat(req.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := export.ABoxOptions{
		BaseIRI: firstNonEmpty(req.BaseIRI, c.config.BaseIRI),
		Format:  format,
	}
	if req.Save {
		opts.OutputDir = c.config.OutputDir
	}

	result, err := export.GenerateABox(source.Normalize(req.Tables), mappingItems(req.Mapping, req.Matches), opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c.logger.Info("Generated ABox", "triples", result.Triples, "format", result.Format, "file", result.FilePath)
	writeJSON(w, http.StatusOK, result)
}

// ----------------------------------------------------------------------------
// POST /api/r2rml
// ----------------------------------------------------------------------------

// R2RMLRequest is the request body for POST /api/r2rml.
type R2RMLRequest struct {
	Mapping   []export.MappingItem  `json:"mapping"`
	Matches   []mapping.MatchResult `json:"matches,omitempty"`
	BaseIRI   string                `json:"base_iri,omitempty"`
	TableName string                `json:"table_name,omitempty"`
	Save      bool                  `json:"save,omitempty"`
}

func (c *Component) handleR2RML(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req R2RMLRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	opts := export.R2RMLOptions{
		BaseIRI:   firstNonEmpty(req.BaseIRI, c.config.BaseIRI),
		TableName: req.TableName,
	}
	if req.Save {
		opts.OutputDir = c.config.OutputDir
	}

	result, err := export.GenerateR2RML(mappingItems(req.Mapping, req.Matches), opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// mappingItems prefers an explicit mapping and otherwise keeps accepted matches.
func mappingItems(items []export.MappingItem, matches []mapping.MatchResult) []export.MappingItem {
	if len(items) > 0 {
		return items
	}
	return export.MappingFromResults(matches)
}

// ----------------------------------------------------------------------------
// helpers
// ----------------------------------------------------------------------------

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Response is already partially written on failure; nothing to report.
	_ = json.NewEncoder(w).Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
