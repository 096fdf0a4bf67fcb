package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/UkralStul/confession-feed/internal/domain"
)

// === Confessions ===

func (h *Handler) listConfessions(w http.ResponseWriter, r *http.Request) {
	args, limit := pageArgs(r, defaultLimit)
	items, err := h.Storage.ListConfessions(r.Context(), args)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(items, limit, func(c *domain.Confession) string { return c.ID }))
}

func (h *Handler) getConfession(w http.ResponseWriter, r *http.Request) {
	c, err := h.Storage.GetConfession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) createConfession(w http.ResponseWriter, r *http.Request) {
	var in contentRequest
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.Storage.CreateConfession(r.Context(), &domain.Confession{
		AuthorID: in.AuthorID,
		Content:  h.sanitize(in.Content),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// === Comments ===

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Storage.GetConfession(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	args, limit := pageArgs(r, defaultLimit)
	items, err := h.Storage.ListComments(r.Context(), id, args)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(items, limit, func(c *domain.Comment) string { return c.ID }))
}

func (h *Handler) commentsByConfessions(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query()["confession_id"]
	byParent, err := h.Storage.CommentsByConfessionIDs(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[domain.Comment]{Items: flatten(byParent, ids)})
}

func (h *Handler) createComment(w http.ResponseWriter, r *http.Request) {
	var in contentRequest
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.Storage.CreateComment(r.Context(), &domain.Comment{
		ConfessionID: chi.URLParam(r, "id"),
		AuthorID:     in.AuthorID,
		Content:      h.sanitize(in.Content),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// === Replies ===

func (h *Handler) listReplies(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Storage.GetComment(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	args, limit := pageArgs(r, defaultReplyLimit)
	items, err := h.Storage.ListChildComments(r.Context(), id, args)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPage(items, limit, func(c *domain.ChildComment) string { return c.ID }))
}

func (h *Handler) repliesByComments(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query()["comment_id"]
	byParent, err := h.Storage.ChildCommentsByCommentIDs(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[domain.ChildComment]{Items: flatten(byParent, ids)})
}

func (h *Handler) createReply(w http.ResponseWriter, r *http.Request) {
	var in contentRequest
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.Storage.CreateChildComment(r.Context(), &domain.ChildComment{
		CommentID: chi.URLParam(r, "id"),
		AuthorID:  in.AuthorID,
		Content:   h.sanitize(in.Content),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// === Likes ===

func (h *Handler) likesBySubjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	for _, kind := range []domain.SubjectKind{domain.SubjectConfession, domain.SubjectComment, domain.SubjectChildComment} {
		ids, ok := q[kind.QueryParam()]
		if !ok {
			continue
		}
		byParent, err := h.Storage.LikesBySubjects(r.Context(), kind, ids)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, itemsResponse[domain.Like]{Items: flatten(byParent, ids)})
		return
	}
	writeError(w, domain.ErrUnknownSubjectKind)
}

func (h *Handler) createLike(w http.ResponseWriter, r *http.Request) {
	var in domain.Like
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	l, err := h.Storage.CreateLike(r.Context(), &domain.Like{
		ActorID:        in.ActorID,
		ConfessionID:   in.ConfessionID,
		CommentID:      in.CommentID,
		ChildCommentID: in.ChildCommentID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *Handler) deleteLike(w http.ResponseWriter, r *http.Request) {
	if err := h.Storage.DeleteLike(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === Users ===

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Storage.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[domain.User]{Items: deref(users)})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Storage.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
