package handlers_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/agora/internal/handlers"
	"github.com/BradenHooton/agora/internal/models"
	"github.com/BradenHooton/agora/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMaxUpload = 1 << 16

func newMessageHandler(svc *handlers.MockMessagingService) *handlers.MessageHandler {
	return handlers.NewMessageHandler(svc, testMaxUpload, handlers.NewTestLogger())
}

func multipartRequest(t *testing.T, fields map[string]string, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/messages", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSendDirect_JSON(t *testing.T) {
	svc := &handlers.MockMessagingService{
		SendDirectMessageFunc: func(_ context.Context, senderID, receiverID, text string, upload *models.AttachmentUpload) (*services.SendResult, error) {
			assert.Equal(t, "alice", senderID)
			assert.Equal(t, "bob", receiverID)
			assert.Equal(t, "hello", text)
			assert.Nil(t, upload)
			return &services.SendResult{
				Outcome: models.OutcomePersistedDelivered,
				Message: &models.Message{ID: "msg-1", SenderID: senderID, ReceiverID: receiverID, Text: text},
			}, nil
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/messages", handlers.SendMessageRequest{ReceiverID: "bob", Message: "hello"})
	req = handlers.WithAuthContext(req, "alice", models.RoleUser)
	w := httptest.NewRecorder()
	newMessageHandler(svc).SendDirect(w, req)

	var result services.SendResult
	handlers.AssertJSONResponse(t, w, http.StatusCreated, &result)
	assert.Equal(t, models.OutcomePersistedDelivered, result.Outcome)
	require.NotNil(t, result.Message)
	assert.Equal(t, "msg-1", result.Message.ID)
}

func TestSendDirect_Multipart(t *testing.T) {
	payload := []byte("\x89PNG\r\n\x1a\nrest-of-image")
	var got *models.AttachmentUpload
	svc := &handlers.MockMessagingService{
		SendDirectMessageFunc: func(_ context.Context, _, receiverID, text string, upload *models.AttachmentUpload) (*services.SendResult, error) {
			assert.Equal(t, "bob", receiverID)
			assert.Equal(t, "look", text)
			got = upload
			return &services.SendResult{Outcome: models.OutcomePersistedSuppressed}, nil
		},
	}

	req := multipartRequest(t, map[string]string{"receiver_id": "bob", "message": "look"}, "photo.png", payload)
	req = handlers.WithAuthContext(req, "alice", models.RoleUser)
	w := httptest.NewRecorder()
	newMessageHandler(svc).SendDirect(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, "photo.png", got.Filename)
	assert.Equal(t, payload, got.Data)
}

func TestSendDirect_MultipartTooLarge(t *testing.T) {
	svc := &handlers.MockMessagingService{}
	req := multipartRequest(t, map[string]string{"receiver_id": "bob"}, "big.bin", make([]byte, testMaxUpload+(2<<20)))
	req = handlers.WithAuthContext(req, "alice", models.RoleUser)
	w := httptest.NewRecorder()
	newMessageHandler(svc).SendDirect(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestSendDirect_Errors(t *testing.T) {
	tests := []struct {
		name       string
		authed     bool
		body       handlers.SendMessageRequest
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unauthenticated", false, handlers.SendMessageRequest{ReceiverID: "bob", Message: "hi"}, nil, http.StatusUnauthorized, "unauthorized"},
		{"missing receiver", true, handlers.SendMessageRequest{Message: "hi"}, nil, http.StatusBadRequest, "bad_request"},
		{"sender blocked receiver", true, handlers.SendMessageRequest{ReceiverID: "bob", Message: "hi"}, models.ErrSenderBlocked, http.StatusForbidden, "forbidden"},
		{"unknown receiver", true, handlers.SendMessageRequest{ReceiverID: "ghost", Message: "hi"}, models.ErrBadRequest, http.StatusBadRequest, "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &handlers.MockMessagingService{
				SendDirectMessageFunc: func(context.Context, string, string, string, *models.AttachmentUpload) (*services.SendResult, error) {
					return &services.SendResult{Outcome: models.OutcomeRejected}, tt.err
				},
			}
			req := handlers.NewTestRequest(t, http.MethodPost, "/messages", tt.body)
			if tt.authed {
				req = handlers.WithAuthContext(req, "alice", models.RoleUser)
			}
			w := httptest.NewRecorder()
			newMessageHandler(svc).SendDirect(w, req)
			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestConversation(t *testing.T) {
	svc := &handlers.MockMessagingService{
		FetchConversationFunc: func(_ context.Context, viewerID, peerID string, limit, offset int) ([]*models.Message, error) {
			assert.Equal(t, "bob", viewerID)
			assert.Equal(t, "alice", peerID)
			assert.Equal(t, 20, limit)
			assert.Equal(t, 40, offset)
			return []*models.Message{{ID: "m1", Text: "one"}, {ID: "m2", Text: "two"}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/messages/alice?limit=20&offset=40", nil)
	req = handlers.WithChiRouteContext(handlers.WithAuthContext(req, "bob", models.RoleUser), map[string]string{"peerID": "alice"})
	w := httptest.NewRecorder()
	newMessageHandler(svc).Conversation(w, req)

	var msgs []models.Message
	handlers.AssertJSONResponse(t, w, http.StatusOK, &msgs)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[1].Text)
}

func TestDeleteMessage(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"sender deletes", nil, http.StatusNoContent, ""},
		{"receiver forbidden", models.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"unknown message", models.ErrNotFound, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &handlers.MockMessagingService{
				DeleteMessageFunc: func(_ context.Context, actorID, messageID string) error {
					assert.Equal(t, "alice", actorID)
					assert.Equal(t, "m1", messageID)
					return tt.err
				},
			}
			req := httptest.NewRequest(http.MethodDelete, "/messages/m1", nil)
			req = handlers.WithChiRouteContext(handlers.WithAuthContext(req, "alice", models.RoleUser), map[string]string{"id": "m1"})
			w := httptest.NewRecorder()
			newMessageHandler(svc).DeleteMessage(w, req)

			if tt.err == nil {
				assert.Equal(t, tt.wantStatus, w.Code)
				return
			}
			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestAttachment(t *testing.T) {
	t.Run("streams decrypted bytes", func(t *testing.T) {
		svc := &handlers.MockMessagingService{
			GetAttachmentFunc: func(_ context.Context, viewerID, id string) (*services.AttachmentContent, error) {
				assert.Equal(t, "bob", viewerID)
				assert.Equal(t, "att-1", id)
				return &services.AttachmentContent{Filename: "photo.png", ContentType: "image/png", Data: []byte("png-bytes")}, nil
			},
		}
		req := httptest.NewRequest(http.MethodGet, "/attachments/att-1", nil)
		req = handlers.WithChiRouteContext(handlers.WithAuthContext(req, "bob", models.RoleUser), map[string]string{"id": "att-1"})
		w := httptest.NewRecorder()
		newMessageHandler(svc).Attachment(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename=photo.png`, w.Header().Get("Content-Disposition"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "png-bytes", w.Body.String())
	})

	t.Run("not a participant", func(t *testing.T) {
		svc := &handlers.MockMessagingService{
			GetAttachmentFunc: func(context.Context, string, string) (*services.AttachmentContent, error) {
				return nil, models.ErrNotFound
			},
		}
		req := httptest.NewRequest(http.MethodGet, "/attachments/att-1", nil)
		req = handlers.WithChiRouteContext(handlers.WithAuthContext(req, "eve", models.RoleUser), map[string]string{"id": "att-1"})
		w := httptest.NewRecorder()
		newMessageHandler(svc).Attachment(w, req)
		handlers.AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
	})
}

func TestCreateGroup(t *testing.T) {
	desc := "weekend plans"
	svc := &handlers.MockMessagingService{
		CreateGroupFunc: func(_ context.Context, creatorID, name string, description *string, memberIDs []string) (*models.Group, error) {
			assert.Equal(t, "alice", creatorID)
			assert.Equal(t, "Hikers", name)
			require.NotNil(t, description)
			assert.Equal(t, desc, *description)
			assert.Equal(t, []string{"bob", "carol"}, memberIDs)
			return &models.Group{ID: "g1", Name: name, Description: description}, nil
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/groups", handlers.CreateGroupRequest{
		Name: " Hikers ", Description: &desc, MemberIDs: []string{"bob", "carol"},
	})
	w := httptest.NewRecorder()
	newMessageHandler(svc).CreateGroup(w, handlers.WithAuthContext(req, "alice", models.RoleUser))

	var group models.Group
	handlers.AssertJSONResponse(t, w, http.StatusCreated, &group)
	assert.Equal(t, "g1", group.ID)
}

func TestCreateGroup_DuplicateMembers(t *testing.T) {
	req := handlers.NewTestRequest(t, http.MethodPost, "/groups", handlers.CreateGroupRequest{
		Name: "Hikers", MemberIDs: []string{"bob", "bob"},
	})
	w := httptest.NewRecorder()
	newMessageHandler(&handlers.MockMessagingService{}).CreateGroup(w, handlers.WithAuthContext(req, "alice", models.RoleUser))
	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestGroupMembership(t *testing.T) {
	t.Run("add members requires ids", func(t *testing.T) {
		req := handlers.NewTestRequest(t, http.MethodPost, "/groups/g1/members", handlers.AddMembersRequest{})
		req = handlers.WithChiRouteContext(handlers.WithAuthContext(req, "alice", models.RoleUser), map[string]string{"id": "g1"})
		w := httptest.NewRecorder()
		newMessageHandler(&handlers.MockMessagingService{}).AddMembers(w, req)
		handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	})

	t.Run("non creator cannot remove", func(t *testing.T) {
		svc := &handlers.MockMessagingService{
			RemoveGroupMemberFunc: func(_ context.Context, actorID, groupID, userID string) error {
				assert.Equal(t, "bob", actorID)
				assert.Equal(t, "g1", groupID)
				assert.Equal(t, "carol", userID)
				return models.ErrForbidden
			},
		}
		req := httptest.NewRequest(http.MethodDelete, "/groups/g1/members/carol", nil)
		req = handlers.WithChiRouteContext(handlers.WithAuthContext(req, "bob", models.RoleUser), map[string]string{"id": "g1", "userID": "carol"})
		w := httptest.NewRecorder()
		newMessageHandler(svc).RemoveMember(w, req)
		handlers.AssertErrorResponse(t, w, http.StatusForbidden, "forbidden")
	})

	t.Run("delete group", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/groups/g1", nil)
		req = handlers.WithChiRouteContext(handlers.WithAuthContext(req, "alice", models.RoleUser), map[string]string{"id": "g1"})
		w := httptest.NewRecorder()
		newMessageHandler(&handlers.MockMessagingService{}).DeleteGroup(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestSendGroupMessage(t *testing.T) {
	svc := &handlers.MockMessagingService{
		SendGroupMessageFunc: func(_ context.Context, senderID, groupID, text string) (*models.GroupMessage, error) {
			return &models.GroupMessage{ID: "gm1", GroupID: groupID, SenderID: senderID}, nil
		},
	}
	req := handlers.NewTestRequest(t, http.MethodPost, "/groups/g1/messages", handlers.GroupMessageRequest{Message: "hey all"})
	req = handlers.WithChiRouteContext(handlers.WithAuthContext(req, "alice", models.RoleUser), map[string]string{"id": "g1"})
	w := httptest.NewRecorder()
	newMessageHandler(svc).SendGroupMessage(w, req)

	var msg models.GroupMessage
	handlers.AssertJSONResponse(t, w, http.StatusCreated, &msg)
	assert.Equal(t, "g1", msg.GroupID)
	assert.Equal(t, "alice", msg.SenderID)
}
