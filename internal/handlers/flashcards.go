package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"flashcards-backend/internal/apperr"
	"flashcards-backend/internal/logger"
	"flashcards-backend/internal/middleware"
	"flashcards-backend/internal/models"
	"flashcards-backend/internal/services"
)

const (
	// multipartMemory is how much of a form is held in memory before parts
	// spill to disk.
	multipartMemory = 32 << 10
	// formOverhead covers multipart boundaries and the non-file fields.
	formOverhead = 512 << 10

	InitDataHeader = "X-Telegram-Init-Data"
)

type Generator interface {
	Generate(ctx context.Context, req services.IngestRequest) (models.CardSet, error)
}

type FlashcardHandler struct {
	generator       Generator
	maxUploadBytes  int64
	maxContentChars int
	log             *logger.Logger
}

func NewFlashcardHandler(generator Generator, maxUploadBytes int64, maxContentChars int, log *logger.Logger) *FlashcardHandler {
	return &FlashcardHandler{
		generator:       generator,
		maxUploadBytes:  maxUploadBytes,
		maxContentChars: maxContentChars,
		log:             log.With("component", "flashcards_handler"),
	}
}

// Generate serves /api/generate-flashcards for every method: OPTIONS is an
// empty 200, POST runs the pipeline, anything else is 405.
func (h *FlashcardHandler) Generate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		methodNotAllowed(w, "POST, OPTIONS")
		return
	}

	// Text is counted in characters, so allow up to four bytes each.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+int64(h.maxContentChars)*4+formOverhead)

	req, cleanup, err := h.readRequest(r)
	defer cleanup()
	if err != nil {
		writeAppError(w, err)
		return
	}

	cards, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.GenerateFlashcardsResponse{
		Success:    true,
		Flashcards: cards,
		Count:      len(cards),
	})
}

// readRequest decodes multipart or urlencoded forms. The returned cleanup
// must always run; it drops any parts the form parser spilled to disk.
func (h *FlashcardHandler) readRequest(r *http.Request) (services.IngestRequest, func(), error) {
	cleanup := func() {}
	req := services.IngestRequest{RequestID: middleware.GetRequestID(r.Context())}

	err := r.ParseMultipartForm(multipartMemory)
	if r.MultipartForm != nil {
		form := r.MultipartForm
		cleanup = func() { form.RemoveAll() }
	}
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return req, cleanup, services.UploadTooLarge(h.maxUploadBytes)
		}
		h.log.Info("malformed form", "request_id", req.RequestID.String(), "error", err)
		return req, cleanup, &apperr.Error{Kind: apperr.KindBadRequest, Message: "Malformed form data", Err: err}
	}

	if values, ok := r.Form["text"]; ok && len(values) > 0 && values[0] != "" {
		req.Text = values[0]
		req.HasText = true
	}

	req.InitData = r.FormValue("initData")
	if req.InitData == "" {
		req.InitData = r.Header.Get(InitDataHeader)
	}
	req.Verified = middleware.GetSession(r.Context()) != nil

	if r.MultipartForm == nil {
		return req, cleanup, nil
	}
	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return req, cleanup, &apperr.Error{Kind: apperr.KindBadRequest, Message: "Malformed form data", Err: err}
	default:
		prev := cleanup
		cleanup = func() {
			file.Close()
			prev()
		}
		req.File = fileInput(file, header)
	}

	return req, cleanup, nil
}

func fileInput(file multipart.File, header *multipart.FileHeader) *services.FileInput {
	return &services.FileInput{
		Filename: header.Filename,
		Size:     header.Size,
		Content:  file,
	}
}
