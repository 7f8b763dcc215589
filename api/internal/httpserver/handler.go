// Package httpserver exposes the prescription pipeline over REST: upload
// an image, read back the processed record, fetch the image and audio
// artifacts.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"mediscribe/api/internal/pharmacist"
	"mediscribe/api/internal/pipeline"
	"mediscribe/api/internal/store"
)

// Runner is the slice of the orchestrator the handler needs.
type Runner interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Repo is the persistence contract, satisfied by store.PrescriptionRepo.
type Repo interface {
	Create(ctx context.Context, uid uuid.UUID, imagePath string) (int64, error)
	SaveResult(ctx context.Context, id int64, rawText, urduText, audioPath string, meds []pharmacist.Medication) error
	MarkError(ctx context.Context, id int64, message, rawText string) error
	GetByUID(ctx context.Context, uid uuid.UUID) (*store.Prescription, error)
	List(ctx context.Context, limit int) ([]*store.Prescription, error)
	Delete(ctx context.Context, uid uuid.UUID) error
}

type Handler struct {
	runner          Runner
	repo            Repo
	uploadDir       string
	audioDir        string
	maxUploadBytes  int64
	pipelineTimeout time.Duration
	log             zerolog.Logger
}

func NewHandler(runner Runner, repo Repo, uploadDir, audioDir string,
	maxUploadBytes int64, pipelineTimeout time.Duration, log zerolog.Logger) *Handler {
	return &Handler{
		runner:          runner,
		repo:            repo,
		uploadDir:       uploadDir,
		audioDir:        audioDir,
		maxUploadBytes:  maxUploadBytes,
		pipelineTimeout: pipelineTimeout,
		log:             log,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/health", h.Health)

	api := e.Group("/api/v1")
	api.POST("/upload", h.Upload)
	api.GET("/prescriptions", h.ListPrescriptions)
	api.GET("/prescriptions/:uid", h.GetPrescription)
	api.DELETE("/prescriptions/:uid", h.DeletePrescription)
	api.GET("/audio/:filename", h.ServeAudio)
	api.GET("/image/:filename", h.ServeImage)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "mediscribe-api",
	})
}

// Upload accepts a multipart prescription image, runs the pipeline and
// persists the outcome. On stage failure the record is kept with status
// "error" and whatever raw text extraction managed to produce.
func (h *Handler) Upload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no file provided")
	}
	if fileHeader.Size > h.maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes))
	}
	if !pipeline.IsSupportedImage(fileHeader.Filename) {
		return echo.NewHTTPError(http.StatusBadRequest,
			"unsupported image type; allowed: jpg, jpeg, png, bmp, gif, tiff, webp")
	}

	uid := uuid.New()
	imageName := uid.String() + filepath.Ext(fileHeader.Filename)
	imagePath := filepath.Join(h.uploadDir, imageName)
	if err := h.saveUpload(fileHeader, imagePath); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store upload")
	}

	ctx := c.Request().Context()
	id, err := h.repo.Create(ctx, uid, imageName)
	if err != nil {
		h.log.Error().Err(err).Msg("create prescription record")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create record")
	}

	audioName := uid.String() + ".mp3"
	runCtx, cancel := context.WithTimeout(ctx, h.pipelineTimeout)
	defer cancel()

	result, err := h.runner.Process(runCtx, pipeline.Request{
		ImagePath:       imagePath,
		PatientName:     c.FormValue("patient_name"),
		SynthesizeAudio: true,
		AudioOutputPath: filepath.Join(h.audioDir, audioName),
	})
	if err != nil {
		return h.failRun(c, id, uid, err)
	}

	storedAudio := ""
	if result.AudioPath != nil {
		storedAudio = audioName
	}
	if err := h.repo.SaveResult(ctx, id, result.RawText, result.UrduText,
		storedAudio, result.MedicationsClean); err != nil {
		h.log.Error().Err(err).Int64("id", id).Msg("save pipeline result")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save result")
	}

	p, err := h.repo.GetByUID(ctx, uid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load record")
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"message":      "prescription processed successfully",
		"prescription": toDTO(p),
	})
}

func (h *Handler) failRun(c echo.Context, id int64, uid uuid.UUID, err error) error {
	status := http.StatusBadGateway
	message := err.Error()
	partialRaw := ""

	var pe *pipeline.Error
	if errors.As(err, &pe) {
		if pe.Kind == pipeline.KindInvalidInput {
			status = http.StatusBadRequest
		}
		if pe.Partial != nil {
			partialRaw = pe.Partial.RawText
		}
	}

	// Background context: the request may already be past its deadline.
	mctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if merr := h.repo.MarkError(mctx, id, message, partialRaw); merr != nil {
		h.log.Error().Err(merr).Int64("id", id).Msg("mark prescription error")
	}

	h.log.Warn().Err(err).Str("uid", uid.String()).Msg("pipeline run failed")
	return echo.NewHTTPError(status, fmt.Sprintf("processing failed: %s", message))
}

func (h *Handler) saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, io.LimitReader(src, h.maxUploadBytes))
	return err
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	list, err := h.repo.List(c.Request().Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("list prescriptions")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list prescriptions")
	}
	dtos := make([]prescriptionDTO, 0, len(list))
	for _, p := range list {
		dtos = append(dtos, toDTO(p))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"prescriptions": dtos,
		"count":         len(dtos),
	})
}

func (h *Handler) GetPrescription(c echo.Context) error {
	uid, err := uuid.Parse(c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid prescription id")
	}
	p, err := h.repo.GetByUID(c.Request().Context(), uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load prescription")
	}
	return c.JSON(http.StatusOK, map[string]any{"prescription": toDTO(p)})
}

func (h *Handler) DeletePrescription(c echo.Context) error {
	uid, err := uuid.Parse(c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid prescription id")
	}
	ctx := c.Request().Context()
	p, err := h.repo.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load prescription")
	}
	if err := h.repo.Delete(ctx, uid); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete prescription")
	}

	// Artifacts are best-effort: the record is already gone.
	if p.ImagePath != "" {
		_ = os.Remove(filepath.Join(h.uploadDir, filepath.Base(p.ImagePath)))
	}
	if p.AudioPath != "" {
		_ = os.Remove(filepath.Join(h.audioDir, filepath.Base(p.AudioPath)))
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "prescription deleted"})
}

func (h *Handler) ServeAudio(c echo.Context) error {
	name := filepath.Base(c.Param("filename"))
	path := filepath.Join(h.audioDir, name)
	if _, err := os.Stat(path); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "audio file not found")
	}
	c.Response().Header().Set(echo.HeaderContentType, "audio/mpeg")
	return c.File(path)
}

func (h *Handler) ServeImage(c echo.Context) error {
	name := filepath.Base(c.Param("filename"))
	path := filepath.Join(h.uploadDir, name)
	if _, err := os.Stat(path); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "image file not found")
	}
	return c.File(path)
}
