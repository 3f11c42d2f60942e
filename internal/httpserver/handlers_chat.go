package httpserver

import (
	"net/http"
	"strconv"

	"silink/internal/apperr"
	"silink/internal/chat"
	"silink/internal/repo"

	"github.com/go-chi/chi/v5"
)

type sendMessageRequest struct {
	Message  string  `json:"message"`
	ImageURL *string `json:"imageUrl"`
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	convos, err := s.deps.Chat.Conversations(r.Context(), principal(r).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convos)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var page repo.Page
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, apperr.Invalid("limit", "must be an integer"))
			return
		}
		page.Limit = limit
	}
	if raw := q.Get("after"); raw != "" {
		cursor, err := chat.DecodeCursor(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		page.After = cursor
	}

	msgs, err := s.deps.Chat.History(r.Context(), principal(r).UserID, chi.URLParam(r, "userId"), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if page.Limit > 0 && len(msgs) == page.Limit {
		w.Header().Set("X-Next-Cursor", chat.EncodeCursor(msgs[len(msgs)-1]))
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	msg, err := s.deps.Chat.Send(r.Context(), chat.SendInput{
		SenderID:   principal(r).UserID,
		ReceiverID: chi.URLParam(r, "userId"),
		Message:    req.Message,
		ImageURL:   req.ImageURL,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Chat.MarkRead(r.Context(), principal(r).UserID, chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
