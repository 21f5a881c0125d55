package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/agora/internal/config"
	"github.com/BradenHooton/agora/internal/models"
	pkglogger "github.com/BradenHooton/agora/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOTPConfig() config.OTPConfig {
	return config.OTPConfig{
		Expiry:      10 * time.Minute,
		Secret:      "otp-test-secret-0123456789abcdef",
		MaxAttempts: 3,
	}
}

func newTestAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(newTestLogger())
}

// usersOf returns a MockUserRepository that resolves the given users.
func usersOf(users ...*models.User) *MockUserRepository {
	find := func(match func(*models.User) bool) (*models.User, error) {
		for _, u := range users {
			if match(u) {
				copied := *u
				return &copied, nil
			}
		}
		return nil, models.ErrNotFound
	}
	return &MockUserRepository{
		GetByIDFunc: func(_ context.Context, id string) (*models.User, error) {
			return find(func(u *models.User) bool { return u.ID == id })
		},
		GetByUsernameFunc: func(_ context.Context, username string) (*models.User, error) {
			return find(func(u *models.User) bool { return u.Username == username })
		},
		GetByEmailFunc: func(_ context.Context, email string) (*models.User, error) {
			return find(func(u *models.User) bool { return u.Email == email })
		},
	}
}

// captureMailer records every email instead of sending it.
type captureMailer struct {
	mu   sync.Mutex
	sent []*Email
	err  error
}

func (m *captureMailer) Send(_ context.Context, email *Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// recordingBroadcaster keeps published events per user.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events map[string][]*models.ChatEvent
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{events: make(map[string][]*models.ChatEvent)}
}

func (b *recordingBroadcaster) Publish(userID string, event *models.ChatEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[userID] = append(b.events[userID], event)
}

func (b *recordingBroadcaster) For(userID string) []*models.ChatEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*models.ChatEvent(nil), b.events[userID]...)
}

// memCodes is an in-memory CodeRepository.
type memCodes struct {
	mu    sync.Mutex
	codes []*models.OneTimeCode
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *memCodes) Create(_ context.Context, code *models.OneTimeCode) (*models.OneTimeCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *code
	stored.ID = uuid.New().String()
	r.codes = append(r.codes, &stored)
	out := stored
	return &out, nil
}

// newest returns the most recent matching code, used or not.
func (r *memCodes) newest(userID string, purpose models.CodePurpose, reference *string, unusedOnly bool) (*models.OneTimeCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.codes) - 1; i >= 0; i-- {
		c := r.codes[i]
		if c.UserID != userID || c.Purpose != purpose || !sameRef(c.Reference, reference) {
			continue
		}
		if unusedOnly && c.Used {
			continue
		}
		out := *c
		return &out, nil
	}
	return nil, models.ErrNotFound
}

func (r *memCodes) LatestUnused(_ context.Context, userID string, purpose models.CodePurpose, reference *string) (*models.OneTimeCode, error) {
	return r.newest(userID, purpose, reference, true)
}

func (r *memCodes) Consume(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.ID == id && !c.Used {
			c.Used = true
			return true, nil
		}
	}
	return false, nil
}

func (r *memCodes) RecordFailure(_ context.Context, id string, maxAttempts int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.ID != id {
			continue
		}
		if c.Used {
			return true, nil
		}
		c.FailedAttempts++
		c.Used = c.FailedAttempts >= maxAttempts
		return c.Used, nil
	}
	return true, nil
}

func (r *memCodes) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.codes[:0]
	var n int64
	for _, c := range r.codes {
		if c.ExpiresAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	r.codes = kept
	return n, nil
}

func (r *memCodes) snapshot() []models.OneTimeCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.OneTimeCode, len(r.codes))
	for i, c := range r.codes {
		out[i] = *c
	}
	return out
}

func (r *memCodes) restore(snap []models.OneTimeCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = make([]*models.OneTimeCode, len(snap))
	for i := range snap {
		c := snap[i]
		r.codes[i] = &c
	}
}

// memAttempts is an in-memory LoginAttemptRepository.
type memAttempts struct {
	mu       sync.Mutex
	attempts []*models.LoginAttempt
}

func (r *memAttempts) Record(_ context.Context, a *models.LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *a
	stored.ID = uuid.New().String()
	r.attempts = append(r.attempts, &stored)
	return nil
}

func (r *memAttempts) ListSince(_ context.Context, username string, since time.Time) ([]*models.LoginAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.LoginAttempt
	for _, a := range r.attempts {
		if a.Username == username && !a.Timestamp.Before(since) {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *memAttempts) FlagSince(_ context.Context, username string, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.attempts {
		if a.Username == username && !a.Timestamp.Before(since) && !a.Flagged && !a.Cleared {
			a.Flagged = true
			n++
		}
	}
	return n, nil
}

func (r *memAttempts) ClearFlags(_ context.Context, username string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.attempts {
		if a.Username != username {
			continue
		}
		if a.Flagged {
			a.Flagged = false
			n++
		}
		a.Cleared = true
	}
	return n, nil
}

func (r *memAttempts) DeleteForUsername(_ context.Context, username string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.attempts[:0]
	var n int64
	for _, a := range r.attempts {
		if a.Username == username {
			n++
			continue
		}
		kept = append(kept, a)
	}
	r.attempts = kept
	return n, nil
}

func (r *memAttempts) ListFlaggedUsernames(_ context.Context, since time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, a := range r.attempts {
		if a.Flagged && !a.Timestamp.Before(since) && !seen[a.Username] {
			seen[a.Username] = true
			out = append(out, a.Username)
		}
	}
	return out, nil
}

func (r *memAttempts) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.attempts[:0]
	var n int64
	for _, a := range r.attempts {
		if !a.Flagged && a.Timestamp.Before(before) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	r.attempts = kept
	return n, nil
}

// memTrust is an in-memory TrustRepository.
type memTrust struct {
	mu          sync.Mutex
	blocks      []*models.UserBlock
	friendships []*models.Friendship
}

func (r *memTrust) hasBlock(blocker, blocked string) bool {
	for _, b := range r.blocks {
		if b.BlockerID == blocker && b.BlockedID == blocked {
			return true
		}
	}
	return false
}

func (r *memTrust) AreRelated(_ context.Context, rel models.Relation, a, b string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rel == models.RelationBlock {
		return r.hasBlock(a, b) || r.hasBlock(b, a), nil
	}
	for _, f := range r.friendships {
		pair := (f.SenderID == a && f.ReceiverID == b) || (f.SenderID == b && f.ReceiverID == a)
		if pair && f.Status == models.FriendshipAccepted {
			return true, nil
		}
	}
	return false, nil
}

func (r *memTrust) BlockState(_ context.Context, senderID, receiverID string) (models.BlockState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.BlockState{
		SenderBlockedReceiver: r.hasBlock(senderID, receiverID),
		ReceiverBlockedSender: r.hasBlock(receiverID, senderID),
	}, nil
}

func (r *memTrust) CreateBlock(_ context.Context, blockerID, blockedID string) (*models.UserBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasBlock(blockerID, blockedID) {
		return nil, models.ErrAlreadyBlocked
	}
	b := &models.UserBlock{ID: uuid.New().String(), BlockerID: blockerID, BlockedID: blockedID, CreatedAt: time.Now()}
	r.blocks = append(r.blocks, b)
	return b, nil
}

func (r *memTrust) DeleteBlock(_ context.Context, blockerID, blockedID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, b := range r.blocks {
		if b.BlockerID == blockerID && b.BlockedID == blockedID {
			r.blocks = append(r.blocks[:i], r.blocks[i+1:]...)
			return nil
		}
	}
	return models.ErrNotFound
}

func (r *memTrust) ListBlocked(_ context.Context, blockerID string) ([]*models.UserBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.UserBlock
	for _, b := range r.blocks {
		if b.BlockerID == blockerID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memTrust) CreateFriendRequest(_ context.Context, senderID, receiverID string) (*models.Friendship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.friendships {
		if f.SenderID == senderID && f.ReceiverID == receiverID {
			return nil, models.ErrFriendshipExists
		}
	}
	f := &models.Friendship{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.FriendshipPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	r.friendships = append(r.friendships, f)
	copied := *f
	return &copied, nil
}

func (r *memTrust) FriendshipBetween(_ context.Context, a, b string) (*models.Friendship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.friendships {
		if (f.SenderID == a && f.ReceiverID == b) || (f.SenderID == b && f.ReceiverID == a) {
			copied := *f
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memTrust) GetFriendship(_ context.Context, id string) (*models.Friendship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.friendships {
		if f.ID == id {
			copied := *f
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memTrust) UpdateFriendshipStatus(_ context.Context, id string, status models.FriendshipStatus) (*models.Friendship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.friendships {
		if f.ID == id {
			f.Status = status
			f.UpdatedAt = time.Now()
			copied := *f
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memTrust) ListFriendships(_ context.Context, userID string, status models.FriendshipStatus) ([]*models.Friendship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Friendship
	for _, f := range r.friendships {
		if (f.SenderID == userID || f.ReceiverID == userID) && f.Status == status {
			copied := *f
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memTrust) DeleteFriendshipsBetween(_ context.Context, a, b string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.friendships[:0]
	var n int64
	for _, f := range r.friendships {
		if (f.SenderID == a && f.ReceiverID == b) || (f.SenderID == b && f.ReceiverID == a) {
			n++
			continue
		}
		kept = append(kept, f)
	}
	r.friendships = kept
	return n, nil
}

// memMessages is an in-memory MessageRepository.
type memMessages struct {
	mu   sync.Mutex
	msgs []*models.Message
}

func (r *memMessages) Create(_ context.Context, msg *models.Message) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *msg
	stored.ID = uuid.New().String()
	stored.Timestamp = time.Now().Add(time.Duration(len(r.msgs)) * time.Millisecond)
	if msg.Attachment != nil {
		att := *msg.Attachment
		att.ID = uuid.New().String()
		att.MessageID = stored.ID
		att.CreatedAt = stored.Timestamp
		stored.Attachment = &att
	}
	r.msgs = append(r.msgs, &stored)
	out := stored
	return &out, nil
}

func (r *memMessages) ListConversation(_ context.Context, q models.ConversationQuery) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var visible []*models.Message
	for _, m := range r.msgs {
		between := (m.SenderID == q.ViewerID && m.ReceiverID == q.PeerID) ||
			(m.SenderID == q.PeerID && m.ReceiverID == q.ViewerID)
		if !between || (m.Blocked && m.ReceiverID == q.ViewerID) || (q.HidePeer && m.SenderID == q.PeerID) {
			continue
		}
		copied := *m
		visible = append(visible, &copied)
	}

	end := len(visible) - q.Offset
	if end <= 0 {
		return []*models.Message{}, nil
	}
	return visible[max(0, end-q.Limit):end], nil
}

func (r *memMessages) GetByID(_ context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if m.ID == id {
			copied := *m
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memMessages) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.msgs {
		if m.ID == id {
			r.msgs = append(r.msgs[:i], r.msgs[i+1:]...)
			return nil
		}
	}
	return models.ErrNotFound
}

func (r *memMessages) GetAttachment(_ context.Context, attachmentID string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if m.Attachment != nil && m.Attachment.ID == attachmentID {
			copied := *m
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

// memGroups is an in-memory GroupRepository.
type memGroups struct {
	mu     sync.Mutex
	groups map[string]*models.Group
	msgs   []*models.GroupMessage
}

func newMemGroups() *memGroups {
	return &memGroups{groups: make(map[string]*models.Group)}
}

func (r *memGroups) Create(_ context.Context, g *models.Group) (*models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *g
	stored.ID = uuid.New().String()
	stored.CreatedAt = time.Now()
	stored.MemberIDs = []string{g.CreatorID}
	for _, id := range g.MemberIDs {
		if !stored.IsMember(id) {
			stored.MemberIDs = append(stored.MemberIDs, id)
		}
	}
	r.groups[stored.ID] = &stored
	out := stored
	out.MemberIDs = append([]string(nil), stored.MemberIDs...)
	return &out, nil
}

func (r *memGroups) GetByID(_ context.Context, id string) (*models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *g
	out.MemberIDs = append([]string(nil), g.MemberIDs...)
	return &out, nil
}

func (r *memGroups) ListForUser(_ context.Context, userID string) ([]*models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Group
	for _, g := range r.groups {
		if g.IsMember(userID) {
			copied := *g
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memGroups) AddMembers(_ context.Context, groupID string, userIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return models.ErrNotFound
	}
	for _, id := range userIDs {
		if !g.IsMember(id) {
			g.MemberIDs = append(g.MemberIDs, id)
		}
	}
	return nil
}

func (r *memGroups) RemoveMember(_ context.Context, groupID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return models.ErrNotFound
	}
	for i, id := range g.MemberIDs {
		if id == userID {
			g.MemberIDs = append(g.MemberIDs[:i], g.MemberIDs[i+1:]...)
			return nil
		}
	}
	return models.ErrNotFound
}

func (r *memGroups) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.groups, id)
	return nil
}

func (r *memGroups) CreateMessage(_ context.Context, msg *models.GroupMessage) (*models.GroupMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *msg
	stored.ID = uuid.New().String()
	stored.Timestamp = time.Now()
	r.msgs = append(r.msgs, &stored)
	out := stored
	return &out, nil
}

func (r *memGroups) ListMessages(_ context.Context, groupID string) ([]*models.GroupMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.GroupMessage
	for _, m := range r.msgs {
		if m.GroupID == groupID {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

// memListings is an in-memory ListingRepository.
type memListings struct {
	mu       sync.Mutex
	listings map[string]*models.Listing
}

func newMemListings() *memListings {
	return &memListings{listings: make(map[string]*models.Listing)}
}

func (r *memListings) Create(_ context.Context, l *models.Listing) (*models.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *l
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.listings[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (r *memListings) GetByID(_ context.Context, id string) (*models.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *l
	return &out, nil
}

func (r *memListings) ListByStatus(_ context.Context, status models.ListingStatus, limit, offset int) ([]*models.Listing, error) {
	return r.filter(func(l *models.Listing) bool { return l.Status == status }), nil
}

func (r *memListings) ListBySeller(_ context.Context, sellerID string, limit, offset int) ([]*models.Listing, error) {
	return r.filter(func(l *models.Listing) bool { return l.SellerID == sellerID }), nil
}

func (r *memListings) filter(keep func(*models.Listing) bool) []*models.Listing {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Listing
	for _, l := range r.listings {
		if keep(l) {
			copied := *l
			out = append(out, &copied)
		}
	}
	return out
}

func (r *memListings) Transition(_ context.Context, id string, from, to models.ListingStatus) (*models.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok || l.Status != from {
		return nil, models.ErrInvalidTransition
	}
	l.Status = to
	l.UpdatedAt = time.Now()
	out := *l
	return &out, nil
}

func (r *memListings) setStatus(id string, status models.ListingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return models.ErrNotFound
	}
	l.Status = status
	return nil
}

func (r *memListings) snapshot() map[string]models.Listing {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]models.Listing, len(r.listings))
	for id, l := range r.listings {
		out[id] = *l
	}
	return out
}

func (r *memListings) restore(snap map[string]models.Listing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings = make(map[string]*models.Listing, len(snap))
	for id := range snap {
		l := snap[id]
		r.listings[id] = &l
	}
}

// memLedger is an in-memory LedgerRepository. InTx calls are serialized and
// rolled back when fn fails, standing in for row locks and a real transaction.
type memLedger struct {
	txMu      sync.Mutex
	mu        sync.Mutex
	codes     *memCodes
	listings  *memListings
	wallets   map[string]*models.Wallet
	txs       []*models.Transaction
	purchases []*models.Purchase

	// failPurchase makes InsertPurchase fail, for rollback tests.
	failPurchase error
}

func newMemLedger(codes *memCodes, listings *memListings) *memLedger {
	return &memLedger{codes: codes, listings: listings, wallets: make(map[string]*models.Wallet)}
}

func (l *memLedger) ensureWallet(userID string) *models.Wallet {
	w, ok := l.wallets[userID]
	if !ok {
		w = &models.Wallet{ID: "wallet-" + userID, UserID: userID, Balance: decimal.Zero, CreatedAt: time.Now()}
		l.wallets[userID] = w
	}
	return w
}

// fund sets a wallet balance directly.
func (l *memLedger) fund(userID, amount string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureWallet(userID).Balance = decimal.RequireFromString(amount)
}

func (l *memLedger) balance(userID string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ensureWallet(userID).Balance
}

func (l *memLedger) GetWallet(_ context.Context, userID string) (*models.Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := *l.ensureWallet(userID)
	return &w, nil
}

func (l *memLedger) ListTransactions(_ context.Context, walletID string, limit, offset int) ([]*models.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.Transaction
	for i := len(l.txs) - 1; i >= 0; i-- {
		if l.txs[i].WalletID == walletID {
			copied := *l.txs[i]
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (l *memLedger) ListPurchases(_ context.Context, userID string, asSeller bool, limit, offset int) ([]*models.Purchase, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.Purchase
	for _, p := range l.purchases {
		if (asSeller && p.SellerID == userID) || (!asSeller && p.BuyerID == userID) {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (l *memLedger) InTx(_ context.Context, fn func(LedgerTx) error) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()

	l.mu.Lock()
	wallets := make(map[string]models.Wallet, len(l.wallets))
	for id, w := range l.wallets {
		wallets[id] = *w
	}
	txCount, purchaseCount := len(l.txs), len(l.purchases)
	l.mu.Unlock()
	codes := l.codes.snapshot()
	listings := l.listings.snapshot()

	if err := fn(memLedgerTx{l}); err != nil {
		l.mu.Lock()
		l.wallets = make(map[string]*models.Wallet, len(wallets))
		for id := range wallets {
			w := wallets[id]
			l.wallets[id] = &w
		}
		l.txs = l.txs[:txCount]
		l.purchases = l.purchases[:purchaseCount]
		l.mu.Unlock()
		l.codes.restore(codes)
		l.listings.restore(listings)
		return err
	}
	return nil
}

type memLedgerTx struct {
	l *memLedger
}

func (t memLedgerTx) LockCode(_ context.Context, userID string, purpose models.CodePurpose, reference string) (*models.OneTimeCode, error) {
	return t.l.codes.newest(userID, purpose, &reference, false)
}

func (t memLedgerTx) ConsumeCode(ctx context.Context, id string) (bool, error) {
	return t.l.codes.Consume(ctx, id)
}

func (t memLedgerTx) LockListing(ctx context.Context, id string) (*models.Listing, error) {
	return t.l.listings.GetByID(ctx, id)
}

func (t memLedgerTx) SetListingStatus(_ context.Context, id string, status models.ListingStatus) error {
	return t.l.listings.setStatus(id, status)
}

func (t memLedgerTx) LockWallets(_ context.Context, userIDs ...string) (map[string]*models.Wallet, error) {
	t.l.mu.Lock()
	defer t.l.mu.Unlock()
	out := make(map[string]*models.Wallet, len(userIDs))
	for _, id := range userIDs {
		w := *t.l.ensureWallet(id)
		out[id] = &w
	}
	return out, nil
}

func (t memLedgerTx) AdjustBalance(_ context.Context, walletID string, delta decimal.Decimal) (*models.Wallet, error) {
	t.l.mu.Lock()
	defer t.l.mu.Unlock()
	for _, w := range t.l.wallets {
		if w.ID != walletID {
			continue
		}
		next := w.Balance.Add(delta)
		if next.IsNegative() {
			return nil, models.ErrInsufficientFunds
		}
		w.Balance = next
		copied := *w
		return &copied, nil
	}
	return nil, models.ErrNotFound
}

func (t memLedgerTx) InsertTransaction(_ context.Context, tx *models.Transaction) (*models.Transaction, error) {
	t.l.mu.Lock()
	defer t.l.mu.Unlock()
	stored := *tx
	stored.ID = uuid.New().String()
	t.l.txs = append(t.l.txs, &stored)
	out := stored
	return &out, nil
}

func (t memLedgerTx) InsertPurchase(_ context.Context, p *models.Purchase) (*models.Purchase, error) {
	t.l.mu.Lock()
	defer t.l.mu.Unlock()
	if t.l.failPurchase != nil {
		return nil, t.l.failPurchase
	}
	for _, existing := range t.l.purchases {
		if existing.ListingID == p.ListingID {
			return nil, models.ErrConflict
		}
	}
	stored := *p
	stored.ID = uuid.New().String()
	t.l.purchases = append(t.l.purchases, &stored)
	out := stored
	return &out, nil
}
