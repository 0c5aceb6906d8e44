package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashcards-backend/internal/apperr"
	"flashcards-backend/internal/logger"
	"flashcards-backend/internal/middleware"
	"flashcards-backend/internal/models"
	"flashcards-backend/internal/services"
)

const photosynthesis = "Photosynthesis converts light into chemical energy."

type fakeGenerator struct {
	got   *services.IngestRequest
	file  []byte
	cards models.CardSet
	err   error
}

func (f *fakeGenerator) Generate(_ context.Context, req services.IngestRequest) (models.CardSet, error) {
	f.got = &req
	if req.File != nil {
		var buf bytes.Buffer
		buf.ReadFrom(req.File.Content)
		f.file = buf.Bytes()
	}
	return f.cards, f.err
}

type formPart struct {
	field, filename string
	data            []byte
}

func multipartRequest(t *testing.T, parts ...formPart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		if p.filename == "" {
			require.NoError(t, mw.WriteField(p.field, string(p.data)))
			continue
		}
		fw, err := mw.CreateFormFile(p.field, p.filename)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/generate-flashcards", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newFlashcardHandler(g Generator) *FlashcardHandler {
	return NewFlashcardHandler(g, 1024*1024, 50000, logger.Nop())
}

// ─── Generate ───

func TestGenerate_MethodHandling(t *testing.T) {
	h := newFlashcardHandler(&fakeGenerator{})

	tests := []struct {
		method string
		status int
		body   string
	}{
		{http.MethodOptions, http.StatusOK, ""},
		{http.MethodGet, http.StatusMethodNotAllowed, "Method not allowed"},
		{http.MethodPut, http.StatusMethodNotAllowed, "Method not allowed"},
		{http.MethodDelete, http.StatusMethodNotAllowed, "Method not allowed"},
	}

	for _, tc := range tests {
		t.Run(tc.method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Generate(rec, httptest.NewRequest(tc.method, "/api/generate-flashcards", nil))

			assert.Equal(t, tc.status, rec.Code)
			if tc.body == "" {
				assert.Zero(t, rec.Body.Len())
				return
			}
			var resp models.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tc.body, resp.Error)
			assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Allow"))
		})
	}
}

func TestGenerate_TextField(t *testing.T) {
	g := &fakeGenerator{cards: models.CardSet{{Front: "Photosynthesis", Back: "Light to chemical energy"}}}
	h := newFlashcardHandler(g)

	req := multipartRequest(t,
		formPart{field: "text", data: []byte(photosynthesis)},
		formPart{field: "initData", data: []byte("query_id=1&hash=abc")},
	)
	rec := httptest.NewRecorder()
	h.Generate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.GenerateFlashcardsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, g.cards, resp.Flashcards)

	require.NotNil(t, g.got)
	assert.True(t, g.got.HasText)
	assert.Equal(t, photosynthesis, g.got.Text)
	assert.Nil(t, g.got.File)
	assert.Equal(t, "query_id=1&hash=abc", g.got.InitData)
	assert.False(t, g.got.Verified)
}

func TestGenerate_FileField(t *testing.T) {
	g := &fakeGenerator{cards: models.CardSet{{Front: "a", Back: "b"}}}
	h := newFlashcardHandler(g)

	rec := httptest.NewRecorder()
	h.Generate(rec, multipartRequest(t, formPart{field: "file", filename: "lecture.pdf", data: []byte("%PDF-1.4")}))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, g.got.File)
	assert.Equal(t, "lecture.pdf", g.got.File.Filename)
	assert.Equal(t, int64(8), g.got.File.Size)
	assert.Equal(t, []byte("%PDF-1.4"), g.file)
	assert.False(t, g.got.HasText)
}

func TestGenerate_URLEncodedForm(t *testing.T) {
	g := &fakeGenerator{cards: models.CardSet{{Front: "a", Back: "b"}}}
	h := newFlashcardHandler(g)

	form := url.Values{"text": {photosynthesis}}
	req := httptest.NewRequest(http.MethodPost, "/api/generate-flashcards", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(InitDataHeader, "from-header")
	rec := httptest.NewRecorder()
	h.Generate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, photosynthesis, g.got.Text)
	assert.Equal(t, "from-header", g.got.InitData)
	assert.Nil(t, g.got.File)
}

func TestGenerate_SessionMarksVerified(t *testing.T) {
	g := &fakeGenerator{cards: models.CardSet{{Front: "a", Back: "b"}}}
	auth := middleware.NewSessionAuth("secret", time.Hour)
	token, _, err := auth.Issue(&services.InitData{UserID: 7})
	require.NoError(t, err)

	h := auth.Middleware(http.HandlerFunc(newFlashcardHandler(g).Generate))
	req := multipartRequest(t, formPart{field: "text", data: []byte(photosynthesis)})
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, g.got.Verified)
}

func TestGenerate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"bad request", apperr.BadRequest("No file or text provided"), 400, "No file or text provided"},
		{"unauthorized", apperr.Unauthorized("Invalid Telegram data"), 401, "Invalid Telegram data"},
		{"extraction", apperr.ExtractionFailed("DOCX", errors.New("zip: not a valid zip file")), 400, "Failed to parse DOCX file"},
		{"provider", apperr.ProviderUnavailable(errors.New("401 invalid x-api-key")), 503, apperr.MsgProviderUnavailable},
		{"invalid reply", apperr.ResponseInvalid(services.ErrNoJSONFound), 500, apperr.MsgGenerateFailed},
		{"untagged", errors.New("surprise"), 500, apperr.MsgInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newFlashcardHandler(&fakeGenerator{err: tc.err})
			rec := httptest.NewRecorder()
			h.Generate(rec, multipartRequest(t, formPart{field: "text", data: []byte("x")}))

			assert.Equal(t, tc.status, rec.Code)
			var resp models.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tc.message, resp.Error)
		})
	}
}

func TestGenerate_BodyOverLimit(t *testing.T) {
	g := &fakeGenerator{}
	h := NewFlashcardHandler(g, 1024, 10, logger.Nop())

	rec := httptest.NewRecorder()
	h.Generate(rec, multipartRequest(t, formPart{field: "file", filename: "big.txt", data: bytes.Repeat([]byte("a"), 2<<20)}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "File size too large. Maximum size is 1KB.", resp.Error)
	assert.Nil(t, g.got)
}

func TestGenerate_EndToEndWithCannedReply(t *testing.T) {
	uploads, err := services.NewUploadStore(t.TempDir())
	require.NoError(t, err)
	pipeline := services.NewPipeline(
		services.PipelineConfig{MaxUploadBytes: 1024 * 1024, MaxContentChars: 50000, MaxCards: 15, SynthesisTimeout: time.Second},
		services.NewInitDataVerifier("token", 0),
		services.NewFileExtractService(),
		services.NewPromptBuilder("Russian"),
		services.NewCannedSynthesizer(),
		uploads,
		logger.Nop(),
	)
	h := newFlashcardHandler(pipeline)

	tests := []struct {
		name  string
		parts []formPart
	}{
		{"text", []formPart{{field: "text", data: []byte(photosynthesis)}}},
		{"txt file", []formPart{{field: "file", filename: "notes.txt", data: []byte(photosynthesis)}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Generate(rec, multipartRequest(t, tc.parts...))

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var resp models.GenerateFlashcardsResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.True(t, resp.Success)
			assert.GreaterOrEqual(t, resp.Count, 1)
			assert.Len(t, resp.Flashcards, resp.Count)
			for _, c := range resp.Flashcards {
				assert.NotEmpty(t, c.Front)
				assert.NotEmpty(t, c.Back)
			}
		})
	}

	rec := httptest.NewRecorder()
	h.Generate(rec, multipartRequest(t,
		formPart{field: "text", data: []byte(photosynthesis)},
		formPart{field: "file", filename: "notes.txt", data: []byte(photosynthesis)},
	))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ─── Session ───

type fakeVerifier struct{ err error }

func (f fakeVerifier) Verify(string) (*services.InitData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.InitData{UserID: 99, Username: "learner"}, nil
}

func TestSessionCreate(t *testing.T) {
	auth := middleware.NewSessionAuth("secret", time.Hour)

	tests := []struct {
		name     string
		body     string
		verifier fakeVerifier
		status   int
	}{
		{"valid", `{"initData":"query_id=1&hash=abc"}`, fakeVerifier{}, http.StatusOK},
		{"bad json", `{`, fakeVerifier{}, http.StatusBadRequest},
		{"missing init data", `{"initData":"  "}`, fakeVerifier{}, http.StatusBadRequest},
		{"forged", `{"initData":"query_id=1&hash=abc"}`, fakeVerifier{err: services.ErrInitDataSignature}, http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewSessionHandler(tc.verifier, auth, logger.Nop())
			rec := httptest.NewRecorder()
			h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/auth/session", strings.NewReader(tc.body)))

			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var resp models.SessionResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			session, err := auth.Parse(resp.Token)
			require.NoError(t, err)
			assert.Equal(t, int64(99), session.UserID)
			assert.True(t, resp.ExpiresAt.After(time.Now()))
		})
	}
}

// ─── System ───

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewSystemHandler("development", "canned").Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "OK", resp.Status)
	assert.Equal(t, Version, resp.Version)
	assert.Equal(t, "canned", resp.Provider)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestDebug_RedactsSecrets(t *testing.T) {
	req := multipartRequest(t,
		formPart{field: "initData", data: []byte("secret-init-data")},
		formPart{field: "file", filename: "notes.txt", data: []byte("hello")},
	)
	req.Header.Set("Authorization", "Bearer xyz")
	rec := httptest.NewRecorder()
	NewSystemHandler("development", "canned").Debug(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-init-data")
	assert.NotContains(t, rec.Body.String(), "xyz")

	var resp models.DebugResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.MethodPost, resp.Method)
	assert.Equal(t, "development", resp.Environment)
	require.Len(t, resp.Files, 1)
	assert.Equal(t, models.DebugFile{Field: "file", Filename: "notes.txt", Size: 5}, resp.Files[0])
}
