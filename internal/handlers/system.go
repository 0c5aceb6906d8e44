package handlers

import (
	"net/http"
	"time"

	"flashcards-backend/internal/models"
)

const Version = "1.0.0"

type SystemHandler struct {
	env      string
	provider string
}

func NewSystemHandler(env, provider string) *SystemHandler {
	return &SystemHandler{env: env, provider: provider}
}

// GET /api/health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "OK",
		Timestamp: time.Now().UTC(),
		Version:   Version,
		Provider:  h.provider,
	})
}

// Debug echoes the request back. Only routed outside production.
func (h *SystemHandler) Debug(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	resp := models.DebugResponse{
		Method:      r.Method,
		URL:         r.URL.String(),
		Headers:     redactHeaders(r.Header),
		Query:       r.URL.Query(),
		Timestamp:   time.Now().UnixMilli(),
		Environment: h.env,
	}

	r.Body = http.MaxBytesReader(w, r.Body, 2<<20)
	if err := r.ParseMultipartForm(multipartMemory); err == nil {
		defer r.MultipartForm.RemoveAll()
		resp.Form = r.MultipartForm.Value
		for field, headers := range r.MultipartForm.File {
			for _, fh := range headers {
				resp.Files = append(resp.Files, models.DebugFile{Field: field, Filename: fh.Filename, Size: fh.Size})
			}
		}
	} else if r.PostForm != nil {
		resp.Form = r.PostForm
	}
	if v, ok := resp.Form["initData"]; ok && len(v) > 0 {
		resp.Form = cloneValues(resp.Form)
		resp.Form["initData"] = []string{"[REDACTED]"}
	}

	writeJSON(w, http.StatusOK, resp)
}

func redactHeaders(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, v := range h {
		switch http.CanonicalHeaderKey(k) {
		case "Authorization", "Cookie", InitDataHeader:
			out[k] = []string{"[REDACTED]"}
		default:
			out[k] = v
		}
	}
	return out
}

func cloneValues(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
