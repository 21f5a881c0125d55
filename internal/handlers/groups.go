package handlers

import (
	"net/http"
	"strings"

	pkghttp "github.com/BradenHooton/agora/pkg/http"
	"github.com/go-chi/chi/v5"
)

type CreateGroupRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	MemberIDs   []string `json:"member_ids" validate:"omitempty,unique,dive,required"`
}

type AddMembersRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,unique,dive,required"`
}

type GroupMessageRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}

// CreateGroup handles POST /groups
func (h *MessageHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req CreateGroupRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	group, err := h.service.CreateGroup(r.Context(), userID, strings.TrimSpace(req.Name), req.Description, req.MemberIDs)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, group)
}

// ListGroups handles GET /groups
func (h *MessageHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	groups, err := h.service.ListGroups(r.Context(), userID)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, groups)
}

// GetGroup handles GET /groups/{id}
func (h *MessageHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	group, err := h.service.GetGroup(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, group)
}

// DeleteGroup handles DELETE /groups/{id}
func (h *MessageHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteGroup(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddMembers handles POST /groups/{id}/members
func (h *MessageHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req AddMembersRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	group, err := h.service.AddGroupMembers(r.Context(), userID, chi.URLParam(r, "id"), req.UserIDs)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, group)
}

// RemoveMember handles DELETE /groups/{id}/members/{userID}
func (h *MessageHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}

	err := h.service.RemoveGroupMember(r.Context(), actorID, chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendGroupMessage handles POST /groups/{id}/messages
func (h *MessageHandler) SendGroupMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req GroupMessageRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	msg, err := h.service.SendGroupMessage(r.Context(), userID, chi.URLParam(r, "id"), req.Message)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, msg)
}

// GroupMessages handles GET /groups/{id}/messages
func (h *MessageHandler) GroupMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	messages, err := h.service.FetchGroupMessages(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, messages)
}
