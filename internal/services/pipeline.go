package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"flashcards-backend/internal/apperr"
	"flashcards-backend/internal/logger"
	"flashcards-backend/internal/models"
)

type Stage string

const (
	StageReceived       Stage = "received"
	StageAuthenticating Stage = "authenticating"
	StageExtracting     Stage = "extracting"
	StagePrompting      Stage = "prompting"
	StageSynthesizing   Stage = "synthesizing"
	StageValidating     Stage = "validating"
	StageResponded      Stage = "responded"
	StageFailed         Stage = "failed"
)

// StageObserver is told about every transition. Implementations must not
// block.
type StageObserver interface {
	StageChanged(requestID uuid.UUID, stage Stage, err error)
}

type FileInput struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// IngestRequest carries exactly one content source: Text (when HasText) or
// File.
type IngestRequest struct {
	RequestID uuid.UUID
	Text      string
	HasText   bool
	File      *FileInput
	InitData  string
	// Verified is set when the origin was already proven, e.g. by a session
	// token.
	Verified bool
}

type PipelineConfig struct {
	EnforceAuth      bool
	RequireInitData  bool
	MaxUploadBytes   int64
	MaxContentChars  int
	MaxCards         int
	SynthesisTimeout time.Duration
}

type Pipeline struct {
	cfg       PipelineConfig
	verifier  *InitDataVerifier
	extractor *FileExtractService
	prompts   *PromptBuilder
	synth     Synthesizer
	uploads   *UploadStore
	observers []StageObserver
	log       *logger.Logger
}

func NewPipeline(
	cfg PipelineConfig,
	verifier *InitDataVerifier,
	extractor *FileExtractService,
	prompts *PromptBuilder,
	synth Synthesizer,
	uploads *UploadStore,
	log *logger.Logger,
	observers ...StageObserver,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		verifier:  verifier,
		extractor: extractor,
		prompts:   prompts,
		synth:     synth,
		uploads:   uploads,
		observers: observers,
		log:       log.With("component", "pipeline"),
	}
}

// Generate runs one request from Received to Responded. Every error it
// returns is an *apperr.Error. The temporary upload, if any, is gone by the
// time Generate returns.
func (p *Pipeline) Generate(ctx context.Context, req IngestRequest) (cards models.CardSet, err error) {
	if req.RequestID == uuid.Nil {
		req.RequestID = uuid.New()
	}
	run := &pipelineRun{
		p:   p,
		req: req,
		log: p.log.With("request_id", req.RequestID.String()),
	}
	defer run.release()
	defer func() {
		if rec := recover(); rec != nil {
			cards = nil
			err = apperr.Internal(fmt.Errorf("panic in stage %s: %v", run.stage, rec))
		}
		if err != nil {
			run.fail(err)
		}
	}()

	run.enter(StageReceived)
	cards, err = run.execute(ctx)
	if err != nil {
		return nil, err
	}
	run.enter(StageResponded)
	return cards, nil
}

type pipelineRun struct {
	p      *Pipeline
	req    IngestRequest
	stage  Stage
	upload *TemporaryUpload
	log    *logger.Logger
}

func (r *pipelineRun) enter(stage Stage) {
	r.stage = stage
	r.log.Debug("pipeline stage", "stage", string(stage))
	for _, o := range r.p.observers {
		o.StageChanged(r.req.RequestID, stage, nil)
	}
}

func (r *pipelineRun) fail(err error) {
	kind := apperr.KindOf(err)
	failedAt := string(r.stage)
	switch kind {
	case apperr.KindBadRequest, apperr.KindUnauthorized, apperr.KindExtractionFailed:
		r.log.Info("request rejected", "stage", failedAt, "kind", kind.String(), "error", err)
	default:
		r.log.Error("request failed", "stage", failedAt, "kind", kind.String(), "error", err)
	}
	r.stage = StageFailed
	for _, o := range r.p.observers {
		o.StageChanged(r.req.RequestID, StageFailed, err)
	}
}

// release drops the temporary upload. Failures are logged and never replace
// the request's own result.
func (r *pipelineRun) release() {
	if r.upload == nil {
		return
	}
	if err := r.p.uploads.Release(r.upload); err != nil {
		r.log.Warn("failed to remove temporary upload", "path", r.upload.Path, "error", err)
	}
	r.upload = nil
}

func (r *pipelineRun) execute(ctx context.Context) (models.CardSet, error) {
	r.enter(StageAuthenticating)
	if err := r.authenticate(); err != nil {
		return nil, err
	}

	r.enter(StageExtracting)
	content, err := r.extract()
	r.release()
	if err != nil {
		return nil, err
	}

	r.enter(StagePrompting)
	prompt := r.p.prompts.Build(content)

	r.enter(StageSynthesizing)
	reply, err := r.synthesize(ctx, prompt)
	if err != nil {
		return nil, err
	}

	r.enter(StageValidating)
	cards, err := ParseCards(reply)
	if err != nil {
		r.log.Warn("provider reply rejected", "provider", r.p.synth.Name(), "reply_chars", utf8.RuneCountInString(reply), "error", err)
		return nil, apperr.ResponseInvalid(err)
	}
	if capped := CapCards(cards, r.p.cfg.MaxCards); len(capped) < len(cards) {
		r.log.Info("card set truncated", "received", len(cards), "kept", len(capped))
		cards = capped
	}
	return cards, nil
}

func (r *pipelineRun) authenticate() error {
	if !r.p.cfg.EnforceAuth || r.req.Verified {
		return nil
	}
	if r.req.InitData == "" {
		if r.p.cfg.RequireInitData {
			return apperr.Unauthorized("Missing Telegram data")
		}
		return nil
	}

	data, err := r.p.verifier.Verify(r.req.InitData)
	if err != nil {
		return &apperr.Error{Kind: apperr.KindUnauthorized, Message: "Invalid Telegram data", Err: err}
	}
	if data.UserID != 0 {
		r.log = r.log.With("telegram_user", data.UserID)
	}
	return nil
}

func (r *pipelineRun) extract() (string, error) {
	hasFile := r.req.File != nil
	switch {
	case hasFile && r.req.HasText:
		return "", apperr.BadRequest("Provide either a file or text, not both")
	case !hasFile && !r.req.HasText:
		return "", apperr.BadRequest("No file or text provided")
	}

	var content string
	if hasFile {
		text, err := r.extractFile(r.req.File)
		if err != nil {
			return "", err
		}
		content = text
	} else {
		content = r.p.extractor.ExtractRawText(r.req.Text)
	}

	if content == "" {
		return "", apperr.BadRequest("No content found in file or text")
	}
	if utf8.RuneCountInString(content) > r.p.cfg.MaxContentChars {
		return "", apperr.BadRequest("Content too long. Please provide shorter text or file.")
	}
	return content, nil
}

func (r *pipelineRun) extractFile(file *FileInput) (string, error) {
	format, err := ParseFormat(filepath.Ext(file.Filename))
	if err != nil {
		return "", apperr.BadRequest("Only PDF, DOCX, and TXT files are allowed")
	}
	if file.Size > r.p.cfg.MaxUploadBytes {
		return "", r.tooLarge()
	}

	upload, err := r.p.uploads.Stage(file.Content, format, r.p.cfg.MaxUploadBytes)
	r.upload = upload
	if errors.Is(err, ErrUploadTooLarge) {
		return "", r.tooLarge()
	}
	if err != nil {
		return "", apperr.Internal(err)
	}

	text, err := r.p.extractor.ExtractTextFromPath(upload.Path, format)
	if err != nil {
		var extractErr *ExtractionError
		if errors.As(err, &extractErr) {
			return "", apperr.ExtractionFailed(format.Label(), err)
		}
		return "", apperr.Internal(err)
	}
	r.log.Debug("file extracted", "format", string(format), "bytes", upload.Size, "chars", utf8.RuneCountInString(text))
	return text, nil
}

func (r *pipelineRun) tooLarge() error {
	return UploadTooLarge(r.p.cfg.MaxUploadBytes)
}

// UploadTooLarge is the rejection for a file over maxBytes.
func UploadTooLarge(maxBytes int64) *apperr.Error {
	return apperr.BadRequest(fmt.Sprintf("File size too large. Maximum size is %s.", humanSize(maxBytes)))
}

// synthesize is detached from client cancellation; only the configured
// timeout bounds it.
func (r *pipelineRun) synthesize(ctx context.Context, prompt string) (string, error) {
	sctx := context.WithoutCancel(ctx)
	if r.p.cfg.SynthesisTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(sctx, r.p.cfg.SynthesisTimeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := r.p.synth.Synthesize(sctx, prompt)
	if err != nil {
		r.log.Error("provider call failed", "provider", r.p.synth.Name(), "elapsed", time.Since(start).String(), "error", err)
		return "", apperr.ProviderUnavailable(err)
	}
	r.log.Debug("provider replied", "provider", r.p.synth.Name(), "elapsed", time.Since(start).String())
	return reply, nil
}

func humanSize(n int64) string {
	const mb = 1024 * 1024
	if n >= mb && n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}
	if n >= 1024 {
		return fmt.Sprintf("%dKB", n/1024)
	}
	return fmt.Sprintf("%d bytes", n)
}
