// Package api serves the confession resources over HTTP for the fetch layer.
package api

import (
	"encoding/json"
	"errors"
	"html"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/UkralStul/confession-feed/internal/domain"
	"github.com/UkralStul/confession-feed/internal/storage"
)

const (
	defaultLimit      = 10
	defaultReplyLimit = 5
	maxLimit          = 50
)

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	Storage storage.Storage
	policy  *bluemonday.Policy
}

// New creates a handler over store.
func New(store storage.Storage) *Handler {
	return &Handler{Storage: store, policy: bluemonday.StrictPolicy()}
}

// Routes mounts every endpoint on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/confessions", func(r chi.Router) {
		r.Get("/", h.listConfessions)
		r.Post("/", h.createConfession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getConfession)
			r.Get("/comments", h.listComments)
			r.Post("/comments", h.createComment)
		})
	})
	r.Get("/comments", h.commentsByConfessions)
	r.Get("/comments/{id}/replies", h.listReplies)
	r.Post("/comments/{id}/replies", h.createReply)
	r.Get("/replies", h.repliesByComments)

	r.Get("/likes", h.likesBySubjects)
	r.Post("/likes", h.createLike)
	r.Delete("/likes/{id}", h.deleteLike)

	r.Get("/users", h.listUsers)
	r.Get("/users/{id}", h.getUser)
	return r
}

// sanitize strips markup from user text. Entities escaped by the policy are
// decoded again so the stored text stays plain.
func (h *Handler) sanitize(s string) string {
	return html.UnescapeString(h.policy.Sanitize(s))
}

type contentRequest struct {
	AuthorID string `json:"authorId"`
	Content  string `json:"content"`
}

type itemsResponse[T any] struct {
	Items []T `json:"items"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, storage.ErrAlreadyLiked):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, storage.ErrTooLong), errors.Is(err, storage.ErrEmpty),
		errors.Is(err, domain.ErrNoLikeTarget), errors.Is(err, domain.ErrMultipleLikeTargets),
		errors.Is(err, domain.ErrUnknownSubjectKind), errors.Is(err, errBadRequest):
		status, msg = http.StatusBadRequest, err.Error()
	default:
		log.Printf("api: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

var errBadRequest = errors.New("bad request")

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}

// pageArgs reads limit and cursor. One extra item is requested to learn
// whether a next page exists.
func pageArgs(r *http.Request, def int) (storage.PaginationArgs, int) {
	l := def
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		l = v
	}
	if l > maxLimit {
		l = maxLimit
	}
	args := storage.PaginationArgs{Limit: l + 1}
	if c := r.URL.Query().Get("cursor"); c != "" {
		args.Cursor = &c
	}
	return args, l
}

// toPage trims the extra item and sets the next cursor to the last id.
func toPage[T any](items []*T, limit int, id func(*T) string) domain.Page[T] {
	hasNextPage := len(items) > limit
	if hasNextPage {
		items = items[:limit]
	}
	page := domain.Page[T]{Items: make([]T, 0, len(items))}
	for _, it := range items {
		page.Items = append(page.Items, *it)
	}
	if hasNextPage && len(items) > 0 {
		endCursor := id(items[len(items)-1])
		page.NextCursor = &endCursor
	}
	return page
}

func flatten[T any](byParent map[string][]*T, ids []string) []T {
	out := make([]T, 0)
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, it := range byParent[id] {
			out = append(out, *it)
		}
	}
	return out
}

func deref[T any](items []*T) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		out = append(out, *it)
	}
	return out
}
