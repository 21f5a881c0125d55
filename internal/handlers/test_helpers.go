package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/agora/internal/auth"
	"github.com/BradenHooton/agora/internal/models"
	"github.com/BradenHooton/agora/internal/services"
	pkghttp "github.com/BradenHooton/agora/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// NewTestLogger returns a logger that discards output.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, role string) *http.Request {
	claims := &models.TokenClaims{
		UserID:   userID,
		Username: userID,
		Role:     role,
		Type:     models.TokenTypeAccess,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// WithMasterKeyContext marks the request as authenticated by the master key.
func WithMasterKeyContext(req *http.Request) *http.Request {
	ctx := context.WithValue(req.Context(), auth.MasterKeyContextKey, true)
	return req.WithContext(ctx)
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc             func(ctx context.Context, username, email, password string) (*models.User, error)
	VerifyEmailFunc          func(ctx context.Context, username, code string) error
	ResendVerificationFunc   func(ctx context.Context, username string) error
	LoginFunc                func(ctx context.Context, username, password, ip, userAgent string) (*services.AuthResponse, error)
	RefreshFunc              func(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
	RequestPasswordResetFunc func(ctx context.Context, email string) error
	ResetPasswordFunc        func(ctx context.Context, email, code, newPassword string) error
}

func (m *MockAuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, username, email, password)
}

func (m *MockAuthService) VerifyEmail(ctx context.Context, username, code string) error {
	if m.VerifyEmailFunc == nil {
		return models.ErrCodeExpiredOrNotFound
	}
	return m.VerifyEmailFunc(ctx, username, code)
}

func (m *MockAuthService) ResendVerification(ctx context.Context, username string) error {
	if m.ResendVerificationFunc == nil {
		return nil
	}
	return m.ResendVerificationFunc(ctx, username)
}

func (m *MockAuthService) Login(ctx context.Context, username, password, ip, userAgent string) (*services.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, username, password, ip, userAgent)
}

func (m *MockAuthService) Refresh(ctx context.Context, refreshToken string) (*services.AuthResponse, error) {
	if m.RefreshFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.RefreshFunc(ctx, refreshToken)
}

func (m *MockAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if m.RequestPasswordResetFunc == nil {
		return nil
	}
	return m.RequestPasswordResetFunc(ctx, email)
}

func (m *MockAuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if m.ResetPasswordFunc == nil {
		return models.ErrCodeExpiredOrNotFound
	}
	return m.ResetPasswordFunc(ctx, email, code, newPassword)
}

// MockMessagingService implements MessagingServiceInterface for testing
type MockMessagingService struct {
	SendDirectMessageFunc  func(ctx context.Context, senderID, receiverID, text string, upload *models.AttachmentUpload) (*services.SendResult, error)
	FetchConversationFunc  func(ctx context.Context, viewerID, peerID string, limit, offset int) ([]*models.Message, error)
	DeleteMessageFunc      func(ctx context.Context, actorID, messageID string) error
	GetAttachmentFunc      func(ctx context.Context, viewerID, attachmentID string) (*services.AttachmentContent, error)
	CreateGroupFunc        func(ctx context.Context, creatorID, name string, description *string, memberIDs []string) (*models.Group, error)
	GetGroupFunc           func(ctx context.Context, userID, groupID string) (*models.Group, error)
	ListGroupsFunc         func(ctx context.Context, userID string) ([]*models.Group, error)
	AddGroupMembersFunc    func(ctx context.Context, actorID, groupID string, userIDs []string) (*models.Group, error)
	RemoveGroupMemberFunc  func(ctx context.Context, actorID, groupID, userID string) error
	DeleteGroupFunc        func(ctx context.Context, actorID, groupID string) error
	SendGroupMessageFunc   func(ctx context.Context, senderID, groupID, text string) (*models.GroupMessage, error)
	FetchGroupMessagesFunc func(ctx context.Context, viewerID, groupID string) ([]*models.GroupMessage, error)
}

func (m *MockMessagingService) SendDirectMessage(ctx context.Context, senderID, receiverID, text string, upload *models.AttachmentUpload) (*services.SendResult, error) {
	if m.SendDirectMessageFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.SendDirectMessageFunc(ctx, senderID, receiverID, text, upload)
}

func (m *MockMessagingService) FetchConversation(ctx context.Context, viewerID, peerID string, limit, offset int) ([]*models.Message, error) {
	if m.FetchConversationFunc == nil {
		return []*models.Message{}, nil
	}
	return m.FetchConversationFunc(ctx, viewerID, peerID, limit, offset)
}

func (m *MockMessagingService) DeleteMessage(ctx context.Context, actorID, messageID string) error {
	if m.DeleteMessageFunc == nil {
		return models.ErrNotFound
	}
	return m.DeleteMessageFunc(ctx, actorID, messageID)
}

func (m *MockMessagingService) GetAttachment(ctx context.Context, viewerID, attachmentID string) (*services.AttachmentContent, error) {
	if m.GetAttachmentFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetAttachmentFunc(ctx, viewerID, attachmentID)
}

func (m *MockMessagingService) CreateGroup(ctx context.Context, creatorID, name string, description *string, memberIDs []string) (*models.Group, error) {
	if m.CreateGroupFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.CreateGroupFunc(ctx, creatorID, name, description, memberIDs)
}

func (m *MockMessagingService) GetGroup(ctx context.Context, userID, groupID string) (*models.Group, error) {
	if m.GetGroupFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetGroupFunc(ctx, userID, groupID)
}

func (m *MockMessagingService) ListGroups(ctx context.Context, userID string) ([]*models.Group, error) {
	if m.ListGroupsFunc == nil {
		return []*models.Group{}, nil
	}
	return m.ListGroupsFunc(ctx, userID)
}

func (m *MockMessagingService) AddGroupMembers(ctx context.Context, actorID, groupID string, userIDs []string) (*models.Group, error) {
	if m.AddGroupMembersFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.AddGroupMembersFunc(ctx, actorID, groupID, userIDs)
}

func (m *MockMessagingService) RemoveGroupMember(ctx context.Context, actorID, groupID, userID string) error {
	if m.RemoveGroupMemberFunc == nil {
		return nil
	}
	return m.RemoveGroupMemberFunc(ctx, actorID, groupID, userID)
}

func (m *MockMessagingService) DeleteGroup(ctx context.Context, actorID, groupID string) error {
	if m.DeleteGroupFunc == nil {
		return nil
	}
	return m.DeleteGroupFunc(ctx, actorID, groupID)
}

func (m *MockMessagingService) SendGroupMessage(ctx context.Context, senderID, groupID, text string) (*models.GroupMessage, error) {
	if m.SendGroupMessageFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.SendGroupMessageFunc(ctx, senderID, groupID, text)
}

func (m *MockMessagingService) FetchGroupMessages(ctx context.Context, viewerID, groupID string) ([]*models.GroupMessage, error) {
	if m.FetchGroupMessagesFunc == nil {
		return []*models.GroupMessage{}, nil
	}
	return m.FetchGroupMessagesFunc(ctx, viewerID, groupID)
}

// MockTrustService implements TrustServiceInterface for testing
type MockTrustService struct {
	BlockFunc                func(ctx context.Context, blockerID, blockedID string) (*models.UserBlock, error)
	UnblockFunc              func(ctx context.Context, blockerID, blockedID string) error
	ListBlockedFunc          func(ctx context.Context, blockerID string) ([]*models.UserBlock, error)
	SendFriendRequestFunc    func(ctx context.Context, senderID, receiverID string) (*models.Friendship, error)
	RespondFriendRequestFunc func(ctx context.Context, userID, friendshipID string, accept bool) (*models.Friendship, error)
	ListFriendsFunc          func(ctx context.Context, userID string) ([]*models.Friendship, error)
	ListPendingRequestsFunc  func(ctx context.Context, userID string) ([]*models.Friendship, error)
	RemoveFriendFunc         func(ctx context.Context, userID, friendID string) error
}

func (m *MockTrustService) Block(ctx context.Context, blockerID, blockedID string) (*models.UserBlock, error) {
	if m.BlockFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.BlockFunc(ctx, blockerID, blockedID)
}

func (m *MockTrustService) Unblock(ctx context.Context, blockerID, blockedID string) error {
	if m.UnblockFunc == nil {
		return nil
	}
	return m.UnblockFunc(ctx, blockerID, blockedID)
}

func (m *MockTrustService) ListBlocked(ctx context.Context, blockerID string) ([]*models.UserBlock, error) {
	if m.ListBlockedFunc == nil {
		return []*models.UserBlock{}, nil
	}
	return m.ListBlockedFunc(ctx, blockerID)
}

func (m *MockTrustService) SendFriendRequest(ctx context.Context, senderID, receiverID string) (*models.Friendship, error) {
	if m.SendFriendRequestFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.SendFriendRequestFunc(ctx, senderID, receiverID)
}

func (m *MockTrustService) RespondFriendRequest(ctx context.Context, userID, friendshipID string, accept bool) (*models.Friendship, error) {
	if m.RespondFriendRequestFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.RespondFriendRequestFunc(ctx, userID, friendshipID, accept)
}

func (m *MockTrustService) ListFriends(ctx context.Context, userID string) ([]*models.Friendship, error) {
	if m.ListFriendsFunc == nil {
		return []*models.Friendship{}, nil
	}
	return m.ListFriendsFunc(ctx, userID)
}

func (m *MockTrustService) ListPendingRequests(ctx context.Context, userID string) ([]*models.Friendship, error) {
	if m.ListPendingRequestsFunc == nil {
		return []*models.Friendship{}, nil
	}
	return m.ListPendingRequestsFunc(ctx, userID)
}

func (m *MockTrustService) RemoveFriend(ctx context.Context, userID, friendID string) error {
	if m.RemoveFriendFunc == nil {
		return nil
	}
	return m.RemoveFriendFunc(ctx, userID, friendID)
}

// MockWalletService implements WalletServiceInterface for testing
type MockWalletService struct {
	GetWalletFunc        func(ctx context.Context, userID string) (*models.Wallet, error)
	ListTransactionsFunc func(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error)
	ListPurchasesFunc    func(ctx context.Context, userID string, limit, offset int) ([]*models.Purchase, error)
	ListSalesFunc        func(ctx context.Context, userID string, limit, offset int) ([]*models.Purchase, error)
	DepositFunc          func(ctx context.Context, userID string, amount decimal.Decimal) (*services.WalletUpdate, error)
	WithdrawFunc         func(ctx context.Context, userID string, amount decimal.Decimal) (*services.WalletUpdate, error)
	InitiatePurchaseFunc func(ctx context.Context, buyerID, listingID string) (*models.PurchaseIntent, error)
	ConfirmPurchaseFunc  func(ctx context.Context, buyerID, reference, code string) (*models.Purchase, error)
}

func (m *MockWalletService) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	if m.GetWalletFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetWalletFunc(ctx, userID)
}

func (m *MockWalletService) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error) {
	if m.ListTransactionsFunc == nil {
		return []*models.Transaction{}, nil
	}
	return m.ListTransactionsFunc(ctx, userID, limit, offset)
}

func (m *MockWalletService) ListPurchases(ctx context.Context, userID string, limit, offset int) ([]*models.Purchase, error) {
	if m.ListPurchasesFunc == nil {
		return []*models.Purchase{}, nil
	}
	return m.ListPurchasesFunc(ctx, userID, limit, offset)
}

func (m *MockWalletService) ListSales(ctx context.Context, userID string, limit, offset int) ([]*models.Purchase, error) {
	if m.ListSalesFunc == nil {
		return []*models.Purchase{}, nil
	}
	return m.ListSalesFunc(ctx, userID, limit, offset)
}

func (m *MockWalletService) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*services.WalletUpdate, error) {
	if m.DepositFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.DepositFunc(ctx, userID, amount)
}

func (m *MockWalletService) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (*services.WalletUpdate, error) {
	if m.WithdrawFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.WithdrawFunc(ctx, userID, amount)
}

func (m *MockWalletService) InitiatePurchase(ctx context.Context, buyerID, listingID string) (*models.PurchaseIntent, error) {
	if m.InitiatePurchaseFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.InitiatePurchaseFunc(ctx, buyerID, listingID)
}

func (m *MockWalletService) ConfirmPurchase(ctx context.Context, buyerID, reference, code string) (*models.Purchase, error) {
	if m.ConfirmPurchaseFunc == nil {
		return nil, models.ErrInvalidCode
	}
	return m.ConfirmPurchaseFunc(ctx, buyerID, reference, code)
}

// MockCatalogService implements CatalogServiceInterface for testing
type MockCatalogService struct {
	CreateListingFunc      func(ctx context.Context, sellerID string, in services.CreateListingInput) (*models.Listing, error)
	GetListingFunc         func(ctx context.Context, viewerID, id string) (*models.Listing, error)
	ListActiveListingsFunc func(ctx context.Context, limit, offset int) ([]*models.Listing, error)
	ListMyListingsFunc     func(ctx context.Context, sellerID string, limit, offset int) ([]*models.Listing, error)
	PublishListingFunc     func(ctx context.Context, sellerID, id string) (*models.Listing, error)
	WithdrawListingFunc    func(ctx context.Context, sellerID, id string) (*models.Listing, error)
	FlagListingFunc        func(ctx context.Context, id string) (*models.Listing, error)
}

func (m *MockCatalogService) CreateListing(ctx context.Context, sellerID string, in services.CreateListingInput) (*models.Listing, error) {
	if m.CreateListingFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.CreateListingFunc(ctx, sellerID, in)
}

func (m *MockCatalogService) GetListing(ctx context.Context, viewerID, id string) (*models.Listing, error) {
	if m.GetListingFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetListingFunc(ctx, viewerID, id)
}

func (m *MockCatalogService) ListActiveListings(ctx context.Context, limit, offset int) ([]*models.Listing, error) {
	if m.ListActiveListingsFunc == nil {
		return []*models.Listing{}, nil
	}
	return m.ListActiveListingsFunc(ctx, limit, offset)
}

func (m *MockCatalogService) ListMyListings(ctx context.Context, sellerID string, limit, offset int) ([]*models.Listing, error) {
	if m.ListMyListingsFunc == nil {
		return []*models.Listing{}, nil
	}
	return m.ListMyListingsFunc(ctx, sellerID, limit, offset)
}

func (m *MockCatalogService) PublishListing(ctx context.Context, sellerID, id string) (*models.Listing, error) {
	if m.PublishListingFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.PublishListingFunc(ctx, sellerID, id)
}

func (m *MockCatalogService) WithdrawListing(ctx context.Context, sellerID, id string) (*models.Listing, error) {
	if m.WithdrawListingFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.WithdrawListingFunc(ctx, sellerID, id)
}

func (m *MockCatalogService) FlagListing(ctx context.Context, id string) (*models.Listing, error) {
	if m.FlagListingFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.FlagListingFunc(ctx, id)
}

// MockUserService implements UserServiceInterface for testing
type MockUserService struct {
	GetUserFunc               func(ctx context.Context, id string) (*models.User, error)
	ListUsersFunc             func(ctx context.Context, limit, offset int) ([]*models.User, error)
	GetProfileFunc            func(ctx context.Context, userID string) (*models.Profile, error)
	SetVerificationStatusFunc func(ctx context.Context, adminID, userID string, status models.VerificationStatus, notes string) (*models.Profile, error)
	SetActiveFunc             func(ctx context.Context, adminID, userID string, active bool) error
}

func (m *MockUserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	if m.GetUserFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetUserFunc(ctx, id)
}

func (m *MockUserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListUsersFunc == nil {
		return []*models.User{}, nil
	}
	return m.ListUsersFunc(ctx, limit, offset)
}

func (m *MockUserService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if m.GetProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetProfileFunc(ctx, userID)
}

func (m *MockUserService) SetVerificationStatus(ctx context.Context, adminID, userID string, status models.VerificationStatus, notes string) (*models.Profile, error) {
	if m.SetVerificationStatusFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.SetVerificationStatusFunc(ctx, adminID, userID, status, notes)
}

func (m *MockUserService) SetActive(ctx context.Context, adminID, userID string, active bool) error {
	if m.SetActiveFunc == nil {
		return nil
	}
	return m.SetActiveFunc(ctx, adminID, userID, active)
}

// MockThreatAdmin implements ThreatAdminInterface for testing
type MockThreatAdmin struct {
	ListLockedFunc    func(ctx context.Context) ([]*models.ThreatStatus, error)
	UnlockFunc        func(ctx context.Context, username string) (int64, error)
	DeleteHistoryFunc func(ctx context.Context, username string) (int64, error)
}

func (m *MockThreatAdmin) ListLocked(ctx context.Context) ([]*models.ThreatStatus, error) {
	if m.ListLockedFunc == nil {
		return []*models.ThreatStatus{}, nil
	}
	return m.ListLockedFunc(ctx)
}

func (m *MockThreatAdmin) Unlock(ctx context.Context, username string) (int64, error) {
	if m.UnlockFunc == nil {
		return 0, nil
	}
	return m.UnlockFunc(ctx, username)
}

func (m *MockThreatAdmin) DeleteHistory(ctx context.Context, username string) (int64, error) {
	if m.DeleteHistoryFunc == nil {
		return 0, nil
	}
	return m.DeleteHistoryFunc(ctx, username)
}
