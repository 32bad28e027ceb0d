package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/LexiconIndonesia/creator-crawler-service/common/utils"
	"github.com/LexiconIndonesia/creator-crawler-service/crawlers/affiliate"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Exporter is satisfied by *affiliate.Exporter.
type Exporter interface {
	ExportCrawled(ctx context.Context) (affiliate.ExportResult, error)
	ExportNotFound(ctx context.Context) (affiliate.ExportResult, error)
}

type ExportHandler struct {
	exporter Exporter
	router   *chi.Mux
}

// NewExportHandler accepts a nil exporter when object storage is not
// configured; every export then answers 503.
func NewExportHandler(exporter Exporter) *ExportHandler {
	router := chi.NewRouter()

	h := &ExportHandler{
		exporter: exporter,
		router:   router,
	}

	router.Post("/creators", h.handleExportCrawled)
	router.Post("/not-found", h.handleExportNotFound)
	return h
}

func (h *ExportHandler) Router() *chi.Mux {
	return h.router
}

// @Summary     Export crawled creators
// @Description Uploads the crawled creators as JSON and returns a signed download URL.
// @Tags        exports
// @Produce     json
// @Success     201 {object} models.BaseResponse{data=affiliate.ExportResult}
// @Failure     404 {object} models.ErrorResponse "Nothing to export"
// @Failure     503 {object} models.ErrorResponse "Export storage is not configured"
// @Security    ApiKeyAuth
// @Router      /exports/creators [post]
func (h *ExportHandler) handleExportCrawled(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, func(ctx context.Context) (affiliate.ExportResult, error) {
		return h.exporter.ExportCrawled(ctx)
	})
}

// @Summary     Export not-found creator IDs
// @Description Uploads the not-found creator IDs as text and returns a signed download URL.
// @Tags        exports
// @Produce     json
// @Success     201 {object} models.BaseResponse{data=affiliate.ExportResult}
// @Failure     404 {object} models.ErrorResponse "Nothing to export"
// @Failure     503 {object} models.ErrorResponse "Export storage is not configured"
// @Security    ApiKeyAuth
// @Router      /exports/not-found [post]
func (h *ExportHandler) handleExportNotFound(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, func(ctx context.Context) (affiliate.ExportResult, error) {
		return h.exporter.ExportNotFound(ctx)
	})
}

func (h *ExportHandler) export(w http.ResponseWriter, r *http.Request, run func(ctx context.Context) (affiliate.ExportResult, error)) {
	if h.exporter == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "Export storage is not configured")
		return
	}
	res, err := run(r.Context())
	if errors.Is(err, affiliate.ErrNothingToExport) {
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Export failed")
		utils.WriteError(w, http.StatusInternalServerError, "Export failed")
		return
	}
	utils.WriteJSON(w, http.StatusCreated, res)
}
