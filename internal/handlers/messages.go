package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/BradenHooton/agora/internal/models"
	"github.com/BradenHooton/agora/internal/services"
	pkghttp "github.com/BradenHooton/agora/pkg/http"
	"github.com/go-chi/chi/v5"
)

// multipartOverhead covers form fields and boundaries around the file part.
const multipartOverhead = 1 << 20

// MessagingServiceInterface defines direct and group messaging operations.
type MessagingServiceInterface interface {
	SendDirectMessage(ctx context.Context, senderID, receiverID, text string, upload *models.AttachmentUpload) (*services.SendResult, error)
	FetchConversation(ctx context.Context, viewerID, peerID string, limit, offset int) ([]*models.Message, error)
	DeleteMessage(ctx context.Context, actorID, messageID string) error
	GetAttachment(ctx context.Context, viewerID, attachmentID string) (*services.AttachmentContent, error)

	CreateGroup(ctx context.Context, creatorID, name string, description *string, memberIDs []string) (*models.Group, error)
	GetGroup(ctx context.Context, userID, groupID string) (*models.Group, error)
	ListGroups(ctx context.Context, userID string) ([]*models.Group, error)
	AddGroupMembers(ctx context.Context, actorID, groupID string, userIDs []string) (*models.Group, error)
	RemoveGroupMember(ctx context.Context, actorID, groupID, userID string) error
	DeleteGroup(ctx context.Context, actorID, groupID string) error
	SendGroupMessage(ctx context.Context, senderID, groupID, text string) (*models.GroupMessage, error)
	FetchGroupMessages(ctx context.Context, viewerID, groupID string) ([]*models.GroupMessage, error)
}

// MessageHandler serves direct messages, attachments and groups.
type MessageHandler struct {
	service   MessagingServiceInterface
	maxUpload int64
	logger    *slog.Logger
}

func NewMessageHandler(service MessagingServiceInterface, maxUpload int64, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{service: service, maxUpload: maxUpload, logger: logger}
}

type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id" validate:"required"`
	Message    string `json:"message" validate:"max=4000"`
}

// SendDirect handles POST /messages. JSON bodies carry text only; multipart
// bodies may add a "file" part.
func (h *MessageHandler) SendDirect(w http.ResponseWriter, r *http.Request) {
	senderID, ok := callerID(w, r)
	if !ok {
		return
	}

	var (
		req    SendMessageRequest
		upload *models.AttachmentUpload
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		var err error
		req, upload, err = h.readMultipart(w, r)
		if err != nil {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
		if err := ValidateRequest(&req); err != nil {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
	} else if !decodeRequest(w, r, &req) {
		return
	}

	result, err := h.service.SendDirectMessage(r.Context(), senderID, req.ReceiverID, req.Message, upload)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, result)
}

func (h *MessageHandler) readMultipart(w http.ResponseWriter, r *http.Request) (SendMessageRequest, *models.AttachmentUpload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return SendMessageRequest{}, nil, errors.New("attachment is too large")
		}
		return SendMessageRequest{}, nil, errors.New("malformed multipart body")
	}

	req := SendMessageRequest{
		ReceiverID: strings.TrimSpace(r.FormValue("receiver_id")),
		Message:    r.FormValue("message"),
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil, nil
	}
	if err != nil {
		return req, nil, errors.New("malformed file part")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		return req, nil, errors.New("failed to read file part")
	}
	return req, &models.AttachmentUpload{Filename: header.Filename, Data: data}, nil
}

// Conversation handles GET /messages/{peerID}
func (h *MessageHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := callerID(w, r)
	if !ok {
		return
	}

	page := pkghttp.ParsePage(r)
	messages, err := h.service.FetchConversation(r.Context(), viewerID, chi.URLParam(r, "peerID"), page.Limit, page.Offset)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, messages)
}

// DeleteMessage handles DELETE /messages/{id}
func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteMessage(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Attachment handles GET /attachments/{id} and streams the decrypted file.
func (h *MessageHandler) Attachment(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := callerID(w, r)
	if !ok {
		return
	}

	content, err := h.service.GetAttachment(r.Context(), viewerID, chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", content.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": content.Filename}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content.Data); err != nil {
		h.logger.Debug("attachment write aborted", slog.Any("error", err))
	}
}
