package handler

import (
	"net/http"

	"github.com/stevemurr/grocery-chat-server/service"
)

func (h *Handler) createChat(w http.ResponseWriter, r *http.Request) {
	var req newChat
	if !decode(w, r, newChatSchema, &req) {
		return
	}
	chat, err := h.chats.Create(r.Context(), session(r).UserID, req.Messages)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"resultCode": ChatCreated,
		"chat":       chat,
	})
}

func (h *Handler) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.chats.List(r.Context(), session(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if chats == nil {
		chats = []service.Chat{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *Handler) deleteChats(w http.ResponseWriter, r *http.Request) {
	n, err := h.chats.DeleteAll(r.Context(), session(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resultCode": ChatUpdated,
		"deleted":    n,
	})
}

func (h *Handler) getChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.chats.Get(r.Context(), session(r).UserID, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// replyChat answers a new message and returns the updated chat.
func (h *Handler) replyChat(w http.ResponseWriter, r *http.Request) {
	var req chatMessage
	if !decode(w, r, chatMessageSchema, &req) {
		return
	}
	chat, err := h.chats.Reply(r.Context(), session(r).UserID, r.PathValue("id"), req.Content)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *Handler) deleteChat(w http.ResponseWriter, r *http.Request) {
	if err := h.chats.Delete(r.Context(), session(r).UserID, r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, ChatUpdated)
}

func (h *Handler) shareChat(w http.ResponseWriter, r *http.Request) {
	path, err := h.chats.Share(r.Context(), session(r).UserID, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, path)
}

// sharedChat is public: anyone with the link can read a shared chat.
func (h *Handler) sharedChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.chats.Shared(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// sampleMessage answers a message without a session or a stored chat.
func (h *Handler) sampleMessage(w http.ResponseWriter, r *http.Request) {
	var req sampleMessage
	if !decode(w, r, sampleMessageSchema, &req) {
		return
	}
	answer, err := h.chats.Sample(r.Context(), req.Content, req.Preferences)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, service.Message{Role: "assistant", Content: answer})
}
