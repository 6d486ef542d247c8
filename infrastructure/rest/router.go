package rest

import (
	"chat-hub/auth"
	"chat-hub/upload"
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter mounts the authenticated API, the websocket endpoint and the
// public upload directory.
func NewRouter(tokens *auth.Tokens, h *Handler, live http.Handler, uploadDir string) *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware(tokens))
	api.HandleFunc("/conversations", h.ListConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations/direct", h.StartDirect).Methods(http.MethodPost)
	api.HandleFunc("/conversations/group", h.CreateGroup).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/messages", h.History).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/search", h.Search).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/images", h.UploadImage).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/voice", h.UploadVoice).Methods(http.MethodPost)
	api.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)

	r.Handle("/ws", auth.Middleware(tokens)(live)).Methods(http.MethodGet)
	r.PathPrefix(upload.PublicPrefix).Handler(
		http.StripPrefix(upload.PublicPrefix, http.FileServer(http.Dir(uploadDir))),
	).Methods(http.MethodGet)
	return r
}
