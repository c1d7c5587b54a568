// Package api exposes the content pipelines over HTTP/JSON.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"aphorist/pkg/commands"
	"aphorist/pkg/content"
	"aphorist/pkg/logger"
	"aphorist/pkg/telemetry"
	"aphorist/pkg/utils"
)

// Server holds the handler dependencies.
type Server struct {
	svc *content.Service
}

func NewServer(svc *content.Service) *Server {
	return &Server{svc: svc}
}

// Router builds the versioned API routes:
//   - POST /v1/posts
//   - GET  /v1/posts/{id}
//   - GET  /v1/posts/{id}/replies
//   - POST /v1/replies
//   - GET  /v1/feed?before=<ms>&limit=<n>
//   - GET  /v1/users/{author}/posts
//   - GET  /v1/users/{author}/replies
//   - GET  /healthz
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(telemetry.Middleware)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/posts", s.createPost).Methods(http.MethodPost)
	v1.HandleFunc("/posts/{id}", s.getPost).Methods(http.MethodGet)
	v1.HandleFunc("/posts/{id}/replies", s.postReplies).Methods(http.MethodGet)
	v1.HandleFunc("/replies", s.createReply).Methods(http.MethodPost)
	v1.HandleFunc("/feed", s.feed).Methods(http.MethodGet)
	v1.HandleFunc("/users/{author}/posts", s.userPosts).Methods(http.MethodGet)
	v1.HandleFunc("/users/{author}/replies", s.userReplies).Methods(http.MethodGet)
	return r
}

// writeErr maps pipeline errors onto HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, content.ErrInvalidInput):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, content.ErrParentNotFound):
		utils.JSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, commands.ErrNotConnected):
		utils.JSONError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		logger.Error("request_failed", "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "internal error")
	}
}

type createPostRequest struct {
	Content  string `json:"content"`
	AuthorID string `json:"authorId"`
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := s.svc.CreatePost(r.Context(), req.Content, req.AuthorID)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, p)
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, ok, err := s.svc.GetPost(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "post not found")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, p)
}

func (s *Server) postReplies(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok, err := s.svc.GetPost(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	} else if !ok {
		utils.JSONError(w, http.StatusNotFound, "post not found")
		return
	}
	threads, err := s.svc.QuoteThreads(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		PostID  string                `json:"postId"`
		Threads []content.QuoteThread `json:"threads"`
	}{PostID: id, Threads: threads})
}

func (s *Server) createReply(w http.ResponseWriter, r *http.Request) {
	var req content.ReplyInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	rep, err := s.svc.CreateReply(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, rep)
}

func (s *Server) feed(w http.ResponseWriter, r *http.Request) {
	var before, limit int64
	if v := r.URL.Query().Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid before cursor")
			return
		}
		before = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			utils.JSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	page, err := s.svc.Feed(r.Context(), before, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, page)
}

func (s *Server) userPosts(w http.ResponseWriter, r *http.Request) {
	author := mux.Vars(r)["author"]
	ids, err := s.svc.UserPosts(r.Context(), author)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Author string   `json:"author"`
		Posts  []string `json:"posts"`
	}{Author: author, Posts: ids})
}

func (s *Server) userReplies(w http.ResponseWriter, r *http.Request) {
	author := mux.Vars(r)["author"]
	ids, err := s.svc.UserReplies(r.Context(), author)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Author  string   `json:"author"`
		Replies []string `json:"replies"`
	}{Author: author, Replies: ids})
}
