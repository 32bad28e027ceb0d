package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/LexiconIndonesia/creator-crawler-service/common/models"
	"github.com/LexiconIndonesia/creator-crawler-service/common/utils"
	"github.com/LexiconIndonesia/creator-crawler-service/repository"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog/log"
)

// RunQueries is the read side of the run history. *repository.Queries
// satisfies it.
type RunQueries interface {
	ListCrawlRuns(ctx context.Context, arg repository.ListCrawlRunsParams) ([]repository.CrawlRun, error)
	CountCrawlRuns(ctx context.Context, status pgtype.Text) (int64, error)
	GetCrawlRun(ctx context.Context, id string) (repository.CrawlRun, error)
	GetCrawlerLogsByRunID(ctx context.Context, runID pgtype.Text) ([]repository.CrawlerLog, error)
}

// RunTracker reports runs that hold the single-runner lock.
// *work.WorkManager satisfies it.
type RunTracker interface {
	ListRunningWorks(ctx context.Context) ([]string, error)
	IsRunning(ctx context.Context, workID string) (bool, error)
}

type RunsHandler struct {
	queries RunQueries
	running RunTracker
	router  *chi.Mux
}

func NewRunsHandler(queries RunQueries, running RunTracker) *RunsHandler {
	router := chi.NewRouter()

	h := &RunsHandler{
		queries: queries,
		running: running,
		router:  router,
	}

	router.Get("/", h.handleListRuns)
	router.Get("/running", h.handleListRunning)
	router.Get("/{runID}", h.handleGetRun)

	return h
}

func (h *RunsHandler) Router() *chi.Mux {
	return h.router
}

// @Summary     List crawl runs
// @Tags        runs
// @Produce     json
// @Param       page   query    int    false "Page number" default(1)
// @Param       limit  query    int    false "Page size"   default(10)
// @Param       status query    string false "Run status"
// @Success     200    {object} models.BasePaginationResponse{data=[]repository.CrawlRun}
// @Failure     500    {object} models.ErrorResponse
// @Security    ApiKeyAuth
// @Router      /runs [get]
func (h *RunsHandler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 10
	}

	offset := (page - 1) * limit

	var status pgtype.Text
	if s := r.URL.Query().Get("status"); s != "" {
		status = pgtype.Text{String: s, Valid: true}
	}

	runs, err := h.queries.ListCrawlRuns(r.Context(), repository.ListCrawlRunsParams{
		Limit:  int32(limit),
		Offset: int32(offset),
		Status: status,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to list runs")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to get runs")
		return
	}
	if runs == nil {
		runs = []repository.CrawlRun{}
	}

	total, err := h.queries.CountCrawlRuns(r.Context(), status)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to count runs")
		return
	}
	utils.WritePagination(w, http.StatusOK, runs, page, limit, total)
}

// @Summary     List running crawl runs
// @Tags        runs
// @Produce     json
// @Success     200 {object} models.BaseResponse{data=[]string}
// @Failure     500 {object} models.ErrorResponse
// @Security    ApiKeyAuth
// @Router      /runs/running [get]
func (h *RunsHandler) handleListRunning(w http.ResponseWriter, r *http.Request) {
	if h.running == nil {
		utils.WriteJSON(w, http.StatusOK, []string{})
		return
	}
	ids, err := h.running.ListRunningWorks(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to list running runs")
		return
	}
	utils.WriteJSON(w, http.StatusOK, ids)
}

// @Summary     Get a crawl run
// @Tags        runs
// @Produce     json
// @Param       runID path     string true "Run ID"
// @Success     200   {object} models.BaseResponse{data=models.RunDetailResponse}
// @Failure     404   {object} models.ErrorResponse
// @Failure     500   {object} models.ErrorResponse
// @Security    ApiKeyAuth
// @Router      /runs/{runID} [get]
func (h *RunsHandler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := h.queries.GetCrawlRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			utils.WriteError(w, http.StatusNotFound, "Run not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	logs, err := h.queries.GetCrawlerLogsByRunID(r.Context(), pgtype.Text{String: runID, Valid: true})
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to get run logs")
		return
	}

	responseLogs := make([]models.CrawlerLogResponse, len(logs))
	for i, l := range logs {
		var details interface{}
		if err := json.Unmarshal(l.Details, &details); err != nil {
			details = string(l.Details)
		}

		responseLogs[i] = models.CrawlerLogResponse{
			ID:        l.ID,
			RunID:     l.RunID.String,
			EventType: l.EventType,
			Message:   l.Message.String,
			Details:   details,
			CreatedAt: l.CreatedAt,
		}
	}

	var running bool
	if h.running != nil {
		if running, err = h.running.IsRunning(r.Context(), runID); err != nil {
			log.Warn().Err(err).Str("runID", runID).Msg("Failed to check run lock")
		}
	}

	utils.WriteJSON(w, http.StatusOK, models.RunDetailResponse{
		Run:       run,
		IsRunning: running,
		Logs:      responseLogs,
	})
}
