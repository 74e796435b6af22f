// Package handlers holds the HTTP surface: bot provisioning, schedule and
// document uploads, and the chat endpoints backed by the session manager.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/docbot-ai/platform/internal/conversation"
	"github.com/docbot-ai/platform/internal/observability/metrics"
	"github.com/docbot-ai/platform/internal/retrieval"
	"github.com/docbot-ai/platform/internal/schedule"
	"github.com/docbot-ai/platform/internal/tenancy"
	"github.com/docbot-ai/platform/internal/tenant"
	"github.com/docbot-ai/platform/pkg/logging"
)

// maxUploadBytes caps schedule and document uploads.
const maxUploadBytes = 20 << 20

// BotHandler serves the bot lifecycle and chat endpoints.
type BotHandler struct {
	registry *tenant.Registry
	manager  *conversation.Manager
	indexer  *retrieval.Service
	locks    *tenancy.Locks
	booking  *metrics.BookingMetrics
	logger   *logging.Logger
}

// NewBotHandler wires the handler over its collaborators. The indexer may
// be nil when no embeddings credential is configured; document uploads are
// then rejected.
func NewBotHandler(
	registry *tenant.Registry,
	manager *conversation.Manager,
	indexer *retrieval.Service,
	locks *tenancy.Locks,
	booking *metrics.BookingMetrics,
	logger *logging.Logger,
) *BotHandler {
	if registry == nil {
		panic("handlers: registry is required")
	}
	if manager == nil {
		panic("handlers: session manager is required")
	}
	if locks == nil {
		panic("handlers: locks are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BotHandler{
		registry: registry,
		manager:  manager,
		indexer:  indexer,
		locks:    locks,
		booking:  booking,
		logger:   logger,
	}
}

type createBotRequest struct {
	Name         string `json:"name"`
	Greeting     string `json:"greeting"`
	Instructions string `json:"system_prompt"`
	APIKey       string `json:"api_key"`
}

// CreateBot provisions a new bot: directory, empty schedule, metadata.
func (h *BotHandler) CreateBot(w http.ResponseWriter, r *http.Request) {
	var req createBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	botID, err := h.registry.Create(req.Name, tenant.Metadata{
		Greeting:     strings.TrimSpace(req.Greeting),
		Instructions: strings.TrimSpace(req.Instructions),
		APIKey:       strings.TrimSpace(req.APIKey),
	})
	switch {
	case errors.Is(err, tenant.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "name must contain letters or digits")
		return
	case errors.Is(err, tenant.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "a bot with this id already exists")
		return
	case err != nil:
		h.logger.Error("bot creation failed", "name", req.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create bot")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"bot_id": botID})
}

// ListBots returns the ids of every registered bot.
func (h *BotHandler) ListBots(w http.ResponseWriter, r *http.Request) {
	ids, err := h.registry.List()
	if err != nil {
		h.logger.Error("bot listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list bots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bots": ids})
}

// UploadSchedule replaces the bot's whole schedule with the uploaded CSV.
// A malformed upload is rejected outright; the previous schedule stays.
func (h *BotHandler) UploadSchedule(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")
	paths, err := h.registry.Resolve(botID)
	if errors.Is(err, tenant.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no such bot")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve bot")
		return
	}

	file, _, err := h.uploadedFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	rows, err := schedule.ParseCSV(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "schedule rejected: "+err.Error())
		return
	}

	store := schedule.NewStore(paths.SchedulePath, h.locks.For(botID), h.logger, h.booking)
	if err := store.Replace(r.Context(), rows); err != nil {
		h.logger.Error("schedule replace failed", "bot_id", botID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store schedule")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "replaced", "slots": len(rows)})
}

// UploadDocument stores the bot's reference document and builds its hybrid
// index. Re-uploading while an index exists is a no-op build.
func (h *BotHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if h.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, "document indexing is not configured")
		return
	}

	botID := chi.URLParam(r, "botID")
	paths, err := h.registry.Resolve(botID)
	if errors.Is(err, tenant.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no such bot")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve bot")
		return
	}

	file, name, err := h.uploadedFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	// Document write and index build serialize behind the bot's lock,
	// shared with booking. Of two concurrent uploads exactly one embeds;
	// the other finds the finished index and skips.
	mu := h.locks.For(botID)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(paths.DocumentDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store document")
		return
	}
	docPath := filepath.Join(paths.DocumentDir, filepath.Base(name))
	dst, err := os.Create(docPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store document")
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, "failed to store document")
		return
	}
	if err := dst.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store document")
		return
	}

	res, err := h.indexer.Build(r.Context(), docPath, paths.IndexDir, true)
	if err != nil {
		h.logger.Error("index build failed", "bot_id", botID, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "document stored but indexing failed: "+err.Error())
		return
	}

	status := "indexed"
	if res == retrieval.BuildSkipped {
		status = "already_indexed"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// Start resets the bot's conversation and returns its greeting.
func (h *BotHandler) Start(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")
	greeting, err := h.manager.Start(r.Context(), botID)
	if errors.Is(err, tenant.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no such bot")
		return
	}
	if err != nil {
		h.logger.Error("session start failed", "bot_id", botID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"greeting": greeting})
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat routes one user message through the bot's planner and returns the
// final reply.
func (h *BotHandler) Chat(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := tenancy.WithBotID(r.Context(), botID)
	reply, err := h.manager.Turn(ctx, botID, req.Message)
	if errors.Is(err, tenant.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no such bot")
		return
	}
	if err != nil {
		h.logger.Error("turn failed", "bot_id", botID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// ChatStream runs one turn and streams planner steps as server-sent
// events: tool_call events as they happen, then a final reply event.
func (h *BotHandler) ChatStream(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := tenancy.WithBotID(r.Context(), botID)
	events, err := h.manager.TurnStream(ctx, botID, req.Message)
	if errors.Is(err, tenant.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no such bot")
		return
	}
	if err != nil {
		h.logger.Error("stream turn failed", "bot_id", botID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}
}

// HealthCheck reports service liveness.
func (h *BotHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// uploadedFile pulls the "file" part from a multipart upload.
func (h *BotHandler) uploadedFile(r *http.Request) (io.ReadCloser, string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", errors.New("expected a multipart upload with a 'file' part")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", errors.New("missing 'file' part in upload")
	}
	return file, header.Filename, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
