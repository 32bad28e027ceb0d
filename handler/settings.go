package handler

import (
	"encoding/json"
	"net/http"

	"github.com/LexiconIndonesia/creator-crawler-service/common/utils"
	"github.com/LexiconIndonesia/creator-crawler-service/crawlers/affiliate"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type SettingsHandler struct {
	settings *affiliate.SettingsStore
	router   *chi.Mux
}

func NewSettingsHandler(settings *affiliate.SettingsStore) *SettingsHandler {
	router := chi.NewRouter()

	h := &SettingsHandler{
		settings: settings,
		router:   router,
	}

	router.Get("/", h.handleGet)
	router.Put("/", h.handlePut)
	router.Delete("/", h.handleDelete)
	return h
}

func (h *SettingsHandler) Router() *chi.Mux {
	return h.router
}

// @Summary     Get settings
// @Tags        settings
// @Produce     json
// @Success     200 {object} models.BaseResponse{data=affiliate.Settings}
// @Failure     500 {object} models.ErrorResponse
// @Security    ApiKeyAuth
// @Router      /settings [get]
func (h *SettingsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Load(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load settings")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	utils.WriteJSON(w, http.StatusOK, s)
}

// handlePut replaces the stored settings. Fields left empty fall back to the
// service defaults.
// @Summary     Replace settings
// @Tags        settings
// @Accept      json
// @Produce     json
// @Param       settings body     affiliate.Settings true "Settings"
// @Success     200      {object} models.BaseResponse{data=affiliate.Settings}
// @Failure     400      {object} models.ErrorResponse
// @Failure     500      {object} models.ErrorResponse
// @Security    ApiKeyAuth
// @Router      /settings [put]
func (h *SettingsHandler) handlePut(w http.ResponseWriter, r *http.Request) {
	var s affiliate.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := s.Validate(); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.settings.Save(r.Context(), s); err != nil {
		log.Error().Err(err).Msg("Failed to save settings")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}

	merged, err := h.settings.Load(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	utils.WriteJSON(w, http.StatusOK, merged)
}

// @Summary     Clear settings
// @Tags        settings
// @Produce     json
// @Success     200 {object} models.BaseResponse{data=string}
// @Failure     500 {object} models.ErrorResponse
// @Security    ApiKeyAuth
// @Router      /settings [delete]
func (h *SettingsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.settings.Clear(r.Context()); err != nil {
		log.Error().Err(err).Msg("Failed to clear settings")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to clear settings")
		return
	}
	utils.WriteMessage(w, http.StatusOK, "success")
}
