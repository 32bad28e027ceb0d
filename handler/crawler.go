package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common/kvstore"
	"github.com/LexiconIndonesia/creator-crawler-service/common/utils"
	"github.com/LexiconIndonesia/creator-crawler-service/crawlers/affiliate"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// AutoCrawlSwitch is the part of *affiliate.AutoCrawler the handler needs.
type AutoCrawlSwitch interface {
	Enabled() bool
	Enable(ctx context.Context) error
	Disable(ctx context.Context)
}

// ChangeWatcher streams writes to the crawl state. kvstore.Store satisfies it.
type ChangeWatcher interface {
	Watch(ctx context.Context, scope kvstore.Scope) (<-chan kvstore.Change, error)
}

// changesKeepAlive is how often an idle change stream sends a comment line.
const changesKeepAlive = 15 * time.Second

type CrawlerHandler struct {
	dispatcher *affiliate.CommandDispatcher
	auto       AutoCrawlSwitch
	changes    ChangeWatcher
	router     *chi.Mux
}

func NewCrawlerHandler(dispatcher *affiliate.CommandDispatcher, auto AutoCrawlSwitch, changes ChangeWatcher) *CrawlerHandler {
	router := chi.NewRouter()

	h := &CrawlerHandler{
		dispatcher: dispatcher,
		auto:       auto,
		changes:    changes,
		router:     router,
	}

	router.Post("/start", h.handleStart)
	router.Post("/continue", h.handleContinue)
	router.Post("/stop", h.handleStop)
	router.Post("/reset", h.handleReset)
	router.Get("/status", h.handleStatus)
	router.Get("/changes", h.handleChanges)
	router.Post("/auto", h.handleAuto)
	return h
}

func (h *CrawlerHandler) Router() *chi.Mux {
	return h.router
}

// @Summary     Start a crawl
// @Description Stops any active crawl and searches the given creator IDs one by one.
// @Tags        crawler
// @Accept      json
// @Produce     json
// @Param       command body     affiliate.StartCommand true "Creator IDs to crawl"
// @Success     202     {object} models.BaseResponse{data=affiliate.CommandResult}
// @Failure     400     {object} models.ErrorResponse
// @Failure     422     {object} models.ErrorResponse "Sink endpoints are not configured"
// @Security    ApiKeyAuth
// @Router      /crawler/start [post]
func (h *CrawlerHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var cmd affiliate.StartCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	res, err := h.dispatcher.Start(r.Context(), cmd)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusAccepted, res)
}

// @Summary     Continue a paused crawl
// @Tags        crawler
// @Produce     json
// @Success     202 {object} models.BaseResponse{data=affiliate.CommandResult}
// @Failure     404 {object} models.ErrorResponse "Nothing to resume"
// @Failure     409 {object} models.ErrorResponse "Already crawling"
// @Security    ApiKeyAuth
// @Router      /crawler/continue [post]
func (h *CrawlerHandler) handleContinue(w http.ResponseWriter, r *http.Request) {
	res, err := h.dispatcher.Continue(r.Context())
	if err != nil {
		writeCommandError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusAccepted, res)
}

// @Summary     Stop the active crawl
// @Tags        crawler
// @Produce     json
// @Success     200 {object} models.BaseResponse{data=affiliate.CommandResult}
// @Security    ApiKeyAuth
// @Router      /crawler/stop [post]
func (h *CrawlerHandler) handleStop(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.dispatcher.Stop(r.Context()))
}

// @Summary     Reset the crawl state
// @Tags        crawler
// @Produce     json
// @Success     200 {object} models.BaseResponse{data=affiliate.CommandResult}
// @Failure     500 {object} models.ErrorResponse
// @Security    ApiKeyAuth
// @Router      /crawler/reset [post]
func (h *CrawlerHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	res, err := h.dispatcher.Reset(r.Context())
	if err != nil {
		writeCommandError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

// @Summary     Crawl status
// @Tags        crawler
// @Produce     json
// @Success     200 {object} models.BaseResponse{data=StatusResponse}
// @Security    ApiKeyAuth
// @Router      /crawler/status [get]
func (h *CrawlerHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:         h.dispatcher.Status(),
		IsAutoCrawling: h.auto != nil && h.auto.Enabled(),
	})
}

// handleChanges streams a server-sent event with the fresh status every time
// the crawl state is written, until the client goes away.
// @Summary     Stream crawl state changes
// @Description Server-sent events, one ChangeEvent per write to the crawl state.
// @Tags        crawler
// @Produce     text/event-stream
// @Success     200 {object} ChangeEvent
// @Failure     503 {object} models.ErrorResponse
// @Security    ApiKeyAuth
// @Router      /crawler/changes [get]
func (h *CrawlerHandler) handleChanges(w http.ResponseWriter, r *http.Request) {
	if h.changes == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "Change stream is not available")
		return
	}

	changes, err := h.changes.Watch(r.Context(), kvstore.ScopeLocal)
	if err != nil {
		log.Error().Err(err).Msg("Failed to watch crawl state")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to watch crawl state")
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would cut the stream otherwise.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Warn().Err(err).Msg("Failed to clear write deadline")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.Warn().Err(err).Msg("Change stream cannot be flushed")
		return
	}

	keepAlive := time.NewTicker(changesKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
		case change, ok := <-changes:
			if !ok {
				return
			}
			b, err := json.Marshal(ChangeEvent{
				Change: change,
				Status: StatusResponse{
					Status:         h.dispatcher.Status(),
					IsAutoCrawling: h.auto != nil && h.auto.Enabled(),
				},
			})
			if err != nil {
				log.Warn().Err(err).Msg("Failed to encode crawl change")
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// @Summary     Toggle auto crawl
// @Tags        crawler
// @Accept      json
// @Produce     json
// @Param       params body     AutoCrawlParams true "Auto crawl switch"
// @Success     200    {object} models.BaseResponse{data=StatusResponse}
// @Failure     400    {object} models.ErrorResponse
// @Failure     502    {object} models.ErrorResponse "Creator ID source failed"
// @Failure     503    {object} models.ErrorResponse
// @Security    ApiKeyAuth
// @Router      /crawler/auto [post]
func (h *CrawlerHandler) handleAuto(w http.ResponseWriter, r *http.Request) {
	if h.auto == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "Auto crawl is not available")
		return
	}

	var p AutoCrawlParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	validate := validator.New()
	if err := validate.Struct(p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if *p.Enabled {
		if err := h.auto.Enable(r.Context()); err != nil {
			log.Warn().Err(err).Msg("Auto crawl could not start")
			utils.WriteError(w, http.StatusBadGateway, err.Error())
			return
		}
	} else {
		h.auto.Disable(r.Context())
	}

	utils.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:         h.dispatcher.Status(),
		IsAutoCrawling: h.auto.Enabled(),
	})
}

// writeCommandError maps orchestrator errors to status codes.
func writeCommandError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs), errors.Is(err, affiliate.ErrNoCreatorIDs):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, affiliate.ErrAlreadyCrawling):
		utils.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, affiliate.ErrNothingToResume):
		utils.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, affiliate.ErrSinkNotConfigured):
		utils.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Error().Err(err).Msg("Crawler command failed")
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

type StatusResponse struct {
	affiliate.Status
	IsAutoCrawling bool `json:"isAutoCrawling"`
}

// ChangeEvent is one message of the change stream.
type ChangeEvent struct {
	Change kvstore.Change `json:"change"`
	Status StatusResponse `json:"status"`
}

type AutoCrawlParams struct {
	Enabled *bool `json:"enabled" validate:"required"`
}
