// Package capture implements the HTTP surface of spec.md §6's "Capture
// HTTP surface": POST /capture/{text|url|photo|voice|pdf|book}. Each
// handler validates the input, runs it through C5/C6's pipeline
// registry, persists via C2, and enqueues a C15 processing task on the
// appropriate priority queue. Grounded on evalgo-org-eve's http/server.go
// (echo + standard middleware stack) for the server shape.
package capture

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"secondbrain/internal/config"
	"secondbrain/internal/kv"
	"secondbrain/internal/logging"
	"secondbrain/internal/pipeline"
	"secondbrain/internal/sqlstore"
	"secondbrain/internal/taskrunner"
)

var log = logging.Get(logging.CategoryIngest)

// Response is the uniform capture reply shape (spec.md §6: "all return
// {status, id, message, [existing_id if deduped]}").
type Response struct {
	Status     string `json:"status"`
	ID         string `json:"id"`
	Message    string `json:"message"`
	ExistingID string `json:"existing_id,omitempty"`
}

// Handler wires the capture endpoints to the pipeline registry, the
// content store, and the task runner.
type Handler struct {
	SQL       *sqlstore.Store
	Pipelines *pipeline.Registry
	Tasks     *taskrunner.Runner
	Limits    config.LimitsConfig
	UploadDir string
}

// New builds a capture Handler.
func New(sql *sqlstore.Store, pipelines *pipeline.Registry, tasks *taskrunner.Runner, limits config.LimitsConfig, uploadDir string) *Handler {
	return &Handler{SQL: sql, Pipelines: pipelines, Tasks: tasks, Limits: limits, UploadDir: uploadDir}
}

// captureRateLimitPerSecond bounds sustained capture throughput per
// client; uploads are heavy (OCR/LLM calls downstream) so the limit is
// conservative.
const captureRateLimitPerSecond = 5

// NewServer builds an echo.Echo with the teacher-pack's standard
// middleware stack and every capture route registered.
func NewServer(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("100M"))
	e.Use(middleware.RequestID())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(captureRateLimitPerSecond))))

	h.Register(e)
	return e
}

// Register attaches the capture routes to an existing echo instance.
func (h *Handler) Register(e *echo.Echo) {
	g := e.Group("/capture")
	g.POST("/text", h.captureText)
	g.POST("/url", h.captureURL)
	g.POST("/photo", h.capturePhoto)
	g.POST("/voice", h.captureVoice)
	g.POST("/pdf", h.capturePDF)
	g.POST("/book", h.captureBook)
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// captureText handles text-idea capture: no external I/O, fastest path.
func (h *Handler) captureText(c echo.Context) error {
	content := c.FormValue("content")
	if strings.TrimSpace(content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}

	input := pipeline.Input{
		Type:    pipeline.InputTextIdea,
		RawText: content,
		Title:   c.FormValue("title"),
		Tags:    splitCSV(c.FormValue("tags")),
	}
	return h.process(c, input, kv.PriorityDefault)
}

// captureURL handles article/bookmark/source-repo URL capture, routing
// to the reporead pipeline for github.com URLs and the web pipeline
// otherwise; source-repo syncs run on the low-priority queue per
// spec.md §6.
func (h *Handler) captureURL(c echo.Context) error {
	url := strings.TrimSpace(c.FormValue("url"))
	if url == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}

	inputType := pipeline.InputArticle
	priority := kv.PriorityDefault
	if strings.HasPrefix(url, "https://github.com/") || strings.HasPrefix(url, "http://github.com/") {
		inputType = pipeline.InputCode
		priority = kv.PriorityLow
	}

	input := pipeline.Input{
		Type:  inputType,
		URL:   url,
		Title: c.FormValue("title"),
		Tags:  splitCSV(c.FormValue("tags")),
	}
	return h.process(c, input, priority)
}

// capturePhoto handles a single photographed page via the book
// pipeline's single-page path (no dedicated whiteboard/photo pipeline
// exists; a lone page is a one-page book batch).
func (h *Handler) capturePhoto(c echo.Context) error {
	path, cleanup, err := h.saveUpload(c, "file")
	if err != nil {
		return err
	}
	defer cleanup()

	input := pipeline.Input{
		Type:      pipeline.InputBook,
		PagePaths: []string{path},
		Title:     c.FormValue("title"),
		Tags:      splitCSV(c.FormValue("tags")),
	}
	return h.process(c, input, kv.PriorityDefault)
}

// captureVoice handles voice memo capture; the user is waiting, so
// this goes to the high-priority queue (spec.md §6).
func (h *Handler) captureVoice(c echo.Context) error {
	path, cleanup, err := h.saveUpload(c, "file")
	if err != nil {
		return err
	}
	defer cleanup()

	input := pipeline.Input{
		Type:      pipeline.InputVoiceMemo,
		LocalPath: path,
		Title:     c.FormValue("title"),
		Tags:      splitCSV(c.FormValue("tags")),
	}
	return h.process(c, input, kv.PriorityHigh)
}

func (h *Handler) capturePDF(c echo.Context) error {
	path, cleanup, err := h.saveUpload(c, "file")
	if err != nil {
		return err
	}
	defer cleanup()

	input := pipeline.Input{
		Type:      pipeline.InputPDF,
		LocalPath: path,
		Title:     c.FormValue("title"),
		Tags:      splitCSV(c.FormValue("tags")),
	}
	return h.process(c, input, kv.PriorityDefault)
}

// captureBook handles a multi-page batch upload ("pages" form field,
// repeated); process_book tasks run under the runner's extended soft/
// hard time limits.
func (h *Handler) captureBook(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}
	files := form.File["pages"]
	if len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one page is required")
	}

	var paths []string
	var cleanups []func()
	defer func() {
		for _, fn := range cleanups {
			fn()
		}
	}()

	for _, fh := range files {
		path, cleanup, err := h.saveFileHeader(fh)
		if err != nil {
			return err
		}
		paths = append(paths, path)
		cleanups = append(cleanups, cleanup)
	}

	input := pipeline.Input{
		Type:      pipeline.InputBook,
		PagePaths: paths,
		Title:     c.FormValue("title"),
		Tags:      splitCSV(c.FormValue("tags")),
	}
	return h.process(c, input, kv.PriorityDefault)
}

// process runs input through the pipeline registry, persists via C2,
// and enqueues a processing task on priority unless the save deduped.
func (h *Handler) process(c echo.Context, input pipeline.Input, priority kv.Priority) error {
	ctx := c.Request().Context()

	p, err := h.Pipelines.GetPipeline(input)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	rec, err := p.Process(ctx, input)
	if err != nil {
		log.Error("pipeline process failed for %s: %v", input.Type, err)
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("processing failed: %v", err))
	}
	rec.Tags = append(rec.Tags, input.Tags...)

	result, err := h.SQL.Save(ctx, rec)
	if err != nil {
		log.Error("save content failed: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save content")
	}

	if result.Deduped {
		return c.JSON(http.StatusOK, Response{
			Status:     "deduped",
			ID:         result.UUID,
			ExistingID: result.ExistingUUID,
			Message:    "content already captured",
		})
	}

	if h.Tasks != nil {
		taskType := taskrunner.TaskProcessContent
		if input.Type == pipeline.InputBook {
			taskType = taskrunner.TaskProcessBook
		}
		task := taskrunner.Task{
			ID:      uuid.NewString(),
			Type:    taskType,
			Payload: []byte(fmt.Sprintf(`{"content_uuid":%q}`, result.UUID)),
		}
		if err := h.Tasks.Enqueue(ctx, priority, task); err != nil {
			log.Error("enqueue processing task for %s: %v", result.UUID, err)
		}
	}

	return c.JSON(http.StatusOK, Response{
		Status:  "captured",
		ID:      result.UUID,
		Message: rec.Title,
	})
}

// saveUpload saves the named multipart field to UploadDir, enforcing
// the configured size cap. Returns the saved path and a cleanup func.
func (h *Handler) saveUpload(c echo.Context, field string) (path string, cleanup func(), err error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s is required", field))
	}
	return h.saveFileHeader(fh)
}

// saveFileHeader streams fh into UploadDir under a random filename,
// rejecting uploads over Limits.MaxFileSizeBytes (spec.md §7 input
// validation: "file too large ... no persistence").
func (h *Handler) saveFileHeader(fh *multipart.FileHeader) (path string, cleanup func(), err error) {
	if h.Limits.MaxFileSizeBytes > 0 && fh.Size > h.Limits.MaxFileSizeBytes {
		return "", nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file %s exceeds the %d byte limit", fh.Filename, h.Limits.MaxFileSizeBytes))
	}

	src, err := fh.Open()
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "could not open uploaded file")
	}
	defer src.Close()

	if err := os.MkdirAll(h.UploadDir, 0o755); err != nil {
		return "", nil, echo.NewHTTPError(http.StatusInternalServerError, "could not prepare upload directory")
	}

	destPath := filepath.Join(h.UploadDir, uuid.NewString()+filepath.Ext(fh.Filename))
	dest, err := os.Create(destPath)
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusInternalServerError, "could not save uploaded file")
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		os.Remove(destPath)
		return "", nil, echo.NewHTTPError(http.StatusInternalServerError, "could not save uploaded file")
	}

	return destPath, func() { os.Remove(destPath) }, nil
}
