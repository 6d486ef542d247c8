// Package rest exposes the conversation queries and the media uploads over
// HTTP. Live delivery goes through the realtime package.
package rest

import (
	"chat-hub/auth"
	"chat-hub/domain"
	"chat-hub/errors"
	"chat-hub/runtime/workers"
	"chat-hub/services"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	// multipartOverhead leaves room for the form boundaries around the file.
	multipartOverhead = 1 << 20
)

// Uploader stores a media blob and persists its message.
type Uploader interface {
	StoreImage(ctx context.Context, conversationID uuid.UUID, senderID, filename string, r io.Reader) (domain.MessageView, error)
	StoreVoice(ctx context.Context, conversationID uuid.UUID, senderID, filename string, r io.Reader) (domain.MessageView, error)
}

// StatsProvider returns the last sample of the hub's health.
type StatsProvider interface {
	Last() workers.HubStats
}

type Handler struct {
	log           *slog.Logger
	conversations services.IConversationService
	uploader      Uploader
	stats         StatsProvider
	validate      *validator.Validate
	maxUploadSize int64
}

func NewHandler(log *slog.Logger, conversations services.IConversationService, uploader Uploader,
	stats StatsProvider, maxUploadSize int64) *Handler {
	return &Handler{
		log:           log,
		conversations: conversations,
		uploader:      uploader,
		stats:         stats,
		validate:      validator.New(),
		maxUploadSize: maxUploadSize,
	}
}

func (h *Handler) StartDirect(w http.ResponseWriter, r *http.Request) {
	var req directRequest
	if !h.decode(w, r, &req) {
		return
	}
	conversation, created, err := h.conversations.StartDirect(r.Context(), userID(r), req.PartnerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, lo.Ternary(created, http.StatusCreated, http.StatusOK), toConversationResponse(conversation))
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !h.decode(w, r, &req) {
		return
	}
	conversation, err := h.conversations.CreateGroup(r.Context(), userID(r), req.Name, req.MemberIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toConversationResponse(conversation))
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.conversations.ListForUser(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lo.Map(summaries, toSummaryResponse))
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := h.conversationID(w, r)
	if !ok {
		return
	}
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}
	views, next, err := h.conversations.History(r.Context(), conversationID, userID(r), cursor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response := historyResponse{Messages: toMessageResponses(views)}
	if len(views) > 0 {
		response.NextCursor = next
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := h.conversationID(w, r)
	if !ok {
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(parsed, maxSearchLimit)
	}
	views, err := h.conversations.Search(r.Context(), conversationID, userID(r), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMessageResponses(views))
}

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, h.uploader.StoreImage)
}

func (h *Handler) UploadVoice(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, h.uploader.StoreVoice)
}

type storeFunc func(ctx context.Context, conversationID uuid.UUID, senderID, filename string, r io.Reader) (domain.MessageView, error)

// upload answers with the persisted message, the client then relays it
// with SendImageMessage or SendVoiceMessage.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request, store storeFunc) {
	conversationID, ok := h.conversationID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "a file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	view, err := store(r.Context(), conversationID, userID(r), header.Filename, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toMessageResponse(view))
}

func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.stats.Last())
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(into); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) conversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// writeError answers 404 for conversations the caller is not part of, so
// that their existence does not leak.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errors.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, errors.ErrUnauthorized), errors.Is(err, errors.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		h.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Debug("Cannot write response", "error", err)
	}
}

func userID(r *http.Request) string {
	identity, _ := auth.FromContext(r.Context())
	return identity.UserID
}
