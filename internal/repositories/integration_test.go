//go:build integration

package repositories_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/agora/internal/config"
	"github.com/BradenHooton/agora/internal/database"
	"github.com/BradenHooton/agora/internal/models"
	"github.com/BradenHooton/agora/internal/repositories"
	"github.com/BradenHooton/agora/internal/services"
	"github.com/BradenHooton/agora/migrations"
	"github.com/BradenHooton/agora/pkg/cipher"
	pkglogger "github.com/BradenHooton/agora/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *database.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("agora"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	code := run(ctx, container, m)
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func run(ctx context.Context, container *postgres.PostgresContainer, m *testing.M) int {
	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		return 1
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create connection pool: %v\n", err)
		return 1
	}
	defer pool.Close()

	testDB = database.NewFromPool(pool, discardLogger())
	if err := testDB.Migrate(ctx, migrations.FS); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		return 1
	}
	return m.Run()
}

var otpConfig = config.OTPConfig{
	Expiry:      10 * time.Minute,
	Secret:      "integration-otp-secret-0123456789",
	MaxAttempts: 3,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var userSeq int

func createUser(t *testing.T, users *repositories.UserRepository) *models.User {
	t.Helper()
	userSeq++
	name := fmt.Sprintf("user%d_%d", userSeq, time.Now().UnixNano()%100000)
	u, err := users.Create(context.Background(), &models.User{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuu6Yq3yMZ2qH0rGqM8nq7C1mRzHk1f6yW",
	})
	require.NoError(t, err)
	require.NoError(t, users.MarkEmailVerified(context.Background(), u.ID))
	u.IsActive = true
	return u
}

// codeMailer captures the six digit code from outgoing emails.
type codeMailer struct {
	mu   sync.Mutex
	last string
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func (m *codeMailer) Send(_ context.Context, email *services.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = codePattern.FindString(email.Text)
	return nil
}

func (m *codeMailer) code() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func TestUserRepository_CreateAndVerify(t *testing.T) {
	ctx := context.Background()
	users := repositories.NewUserRepository(testDB)
	profiles := repositories.NewProfileRepository(testDB)

	u, err := users.Create(ctx, &models.User{Username: "integration_alice", Email: "ia@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	assert.False(t, u.IsActive)

	_, err = users.Create(ctx, &models.User{Username: "integration_alice", Email: "other@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, models.ErrConflict)

	profile, err := profiles.GetByUserID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationUnverified, profile.VerificationStatus)
	assert.False(t, profile.EmailVerified)

	require.NoError(t, users.MarkEmailVerified(ctx, u.ID))
	got, err := users.GetByUsername(ctx, "integration_alice")
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	profile, err = profiles.GetByUserID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, profile.EmailVerified)

	_, err = users.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCodeRepository_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	users := repositories.NewUserRepository(testDB)
	codes := repositories.NewCodeRepository(testDB)
	mailer := &codeMailer{}
	otp := services.NewOTPService(codes, mailer, otpConfig, discardLogger())

	u := createUser(t, users)
	issued, err := otp.Issue(ctx, u, models.PurposePasswordReset, models.CodeBinding{})
	require.NoError(t, err)
	require.Len(t, mailer.code(), 6)

	var wg sync.WaitGroup
	results := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := codes.Consume(ctx, issued.ID)
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestCodeRepository_RecordFailureBurns(t *testing.T) {
	ctx := context.Background()
	users := repositories.NewUserRepository(testDB)
	codes := repositories.NewCodeRepository(testDB)
	otp := services.NewOTPService(codes, &codeMailer{}, otpConfig, discardLogger())

	u := createUser(t, users)
	issued, err := otp.Issue(ctx, u, models.PurposePasswordReset, models.CodeBinding{})
	require.NoError(t, err)

	var hash string
	require.NoError(t, testDB.Pool.QueryRow(ctx, `SELECT code_hash FROM one_time_codes WHERE id = $1`, issued.ID).Scan(&hash))
	assert.Len(t, hash, 64)

	for i := 1; i < otpConfig.MaxAttempts; i++ {
		burned, err := codes.RecordFailure(ctx, issued.ID, otpConfig.MaxAttempts)
		require.NoError(t, err)
		assert.False(t, burned, "attempt %d", i)
	}
	burned, err := codes.RecordFailure(ctx, issued.ID, otpConfig.MaxAttempts)
	require.NoError(t, err)
	assert.True(t, burned)

	_, err = codes.LatestUnused(ctx, u.ID, models.PurposePasswordReset, nil)
	assert.ErrorIs(t, err, models.ErrNotFound)

	burned, err = codes.RecordFailure(ctx, issued.ID, otpConfig.MaxAttempts)
	require.NoError(t, err)
	assert.True(t, burned, "a used code stays unusable")
}

func TestLoginAttemptRepository_ClearFlags(t *testing.T) {
	ctx := context.Background()
	attempts := repositories.NewLoginAttemptRepository(testDB)
	username := fmt.Sprintf("lockout_%d", time.Now().UnixNano())
	since := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		require.NoError(t, attempts.Record(ctx, &models.LoginAttempt{
			Username:  username,
			IPAddress: "10.0.0.1",
			Success:   false,
			Timestamp: time.Now().UTC(),
		}))
	}
	flagged, err := attempts.FlagSince(ctx, username, since)
	require.NoError(t, err)
	assert.Equal(t, int64(3), flagged)

	cleared, err := attempts.ClearFlags(ctx, username)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cleared)

	history, err := attempts.ListSince(ctx, username, since)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for _, a := range history {
		assert.False(t, a.Flagged)
		assert.True(t, a.Cleared)
	}

	flagged, err = attempts.FlagSince(ctx, username, since)
	require.NoError(t, err)
	assert.Zero(t, flagged, "cleared attempts cannot be flagged again")

	require.NoError(t, attempts.Record(ctx, &models.LoginAttempt{
		Username:  username,
		IPAddress: "10.0.0.1",
		Success:   false,
		Timestamp: time.Now().UTC(),
	}))
	flagged, err = attempts.FlagSince(ctx, username, since)
	require.NoError(t, err)
	assert.Equal(t, int64(1), flagged)
}

func TestTrustRepository_BlockState(t *testing.T) {
	ctx := context.Background()
	users := repositories.NewUserRepository(testDB)
	trust := repositories.NewTrustRepository(testDB)

	a, b := createUser(t, users), createUser(t, users)
	_, err := trust.CreateBlock(ctx, a.ID, b.ID)
	require.NoError(t, err)

	_, err = trust.CreateBlock(ctx, a.ID, b.ID)
	assert.ErrorIs(t, err, models.ErrConflict)

	state, err := trust.BlockState(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, state.SenderBlockedReceiver)
	assert.False(t, state.ReceiverBlockedSender)

	related, err := trust.AreRelated(ctx, models.RelationBlock, b.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, related)
}

func TestMessages_EncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	users := repositories.NewUserRepository(testDB)
	trust := repositories.NewTrustRepository(testDB)
	c, err := cipher.New([]byte("integration-test-message-key-0123456789"))
	require.NoError(t, err)

	messaging := services.NewMessagingService(
		repositories.NewMessageRepository(testDB),
		repositories.NewGroupRepository(testDB),
		trust, users, c, 1<<20, discardLogger())

	alice, bob := createUser(t, users), createUser(t, users)
	result, err := messaging.SendDirectMessage(ctx, alice.ID, bob.ID, "meet at noon", nil)
	require.NoError(t, err)
	require.NotNil(t, result.Message)

	var raw []byte
	require.NoError(t, testDB.Pool.QueryRow(ctx, `SELECT ciphertext FROM messages WHERE id = $1`, result.Message.ID).Scan(&raw))
	assert.NotContains(t, string(raw), "meet at noon")

	convo, err := messaging.FetchConversation(ctx, bob.ID, alice.ID, 50, 0)
	require.NoError(t, err)
	require.Len(t, convo, 1)
	assert.Equal(t, "meet at noon", convo[0].Text)
}

func TestMessages_DeleteAndPage(t *testing.T) {
	ctx := context.Background()
	users := repositories.NewUserRepository(testDB)
	c, err := cipher.New([]byte("integration-test-message-key-0123456789"))
	require.NoError(t, err)

	messaging := services.NewMessagingService(
		repositories.NewMessageRepository(testDB),
		repositories.NewGroupRepository(testDB),
		repositories.NewTrustRepository(testDB), users, c, 1<<20, discardLogger())

	alice, bob := createUser(t, users), createUser(t, users)
	for _, text := range []string{"one", "two", "three", "four", "five"} {
		_, err := messaging.SendDirectMessage(ctx, alice.ID, bob.ID, text, nil)
		require.NoError(t, err)
	}

	texts := func(msgs []*models.Message) []string {
		out := make([]string, len(msgs))
		for i, m := range msgs {
			out[i] = m.Text
		}
		return out
	}
	page, err := messaging.FetchConversation(ctx, bob.ID, alice.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"four", "five"}, texts(page))
	page, err = messaging.FetchConversation(ctx, bob.ID, alice.ID, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, texts(page))

	withFile, err := messaging.SendDirectMessage(ctx, alice.ID, bob.ID, "see file", &models.AttachmentUpload{
		Filename: "notes.txt",
		Data:     []byte("shopping list"),
	})
	require.NoError(t, err)
	require.NotNil(t, withFile.Message.Attachment)

	err = messaging.DeleteMessage(ctx, bob.ID, withFile.Message.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	require.NoError(t, messaging.DeleteMessage(ctx, alice.ID, withFile.Message.ID))

	var attachments int
	require.NoError(t, testDB.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM media_attachments WHERE message_id = $1`, withFile.Message.ID).Scan(&attachments))
	assert.Zero(t, attachments)

	err = messaging.DeleteMessage(ctx, alice.ID, withFile.Message.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPurchaseFlow_EndToEnd(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()
	users := repositories.NewUserRepository(testDB)
	listings := repositories.NewListingRepository(testDB)
	mailer := &codeMailer{}
	otp := services.NewOTPService(repositories.NewCodeRepository(testDB), mailer, otpConfig, logger)
	catalog := services.NewCatalogService(listings, logger)
	wallet := services.NewWalletService(repositories.NewLedgerRepository(testDB), listings, users, otp, logger, pkglogger.NewAuditLogger(logger))

	seller, buyer := createUser(t, users), createUser(t, users)

	listing, err := catalog.CreateListing(ctx, seller.ID, services.CreateListingInput{
		Title:   "Road bike",
		Price:   decimal.RequireFromString("50.00"),
		Publish: true,
	})
	require.NoError(t, err)
	require.Equal(t, models.ListingActive, listing.Status)

	_, err = wallet.Deposit(ctx, buyer.ID, decimal.RequireFromString("100.00"))
	require.NoError(t, err)

	intent, err := wallet.InitiatePurchase(ctx, buyer.ID, listing.ID)
	require.NoError(t, err)
	code := mailer.code()
	require.Len(t, code, 6)

	purchase, err := wallet.ConfirmPurchase(ctx, buyer.ID, intent.Reference, code)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("50.00").Equal(purchase.Price))

	buyerWallet, err := wallet.GetWallet(ctx, buyer.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("50.00").Equal(buyerWallet.Balance))

	sellerWallet, err := wallet.GetWallet(ctx, seller.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("50.00").Equal(sellerWallet.Balance))

	sold, err := listings.GetByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingSold, sold.Status)

	_, err = wallet.ConfirmPurchase(ctx, buyer.ID, intent.Reference, code)
	assert.ErrorIs(t, err, models.ErrConflict)

	txs, err := wallet.ListTransactions(ctx, buyer.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestPurchaseFlow_ConcurrentConfirm(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()
	users := repositories.NewUserRepository(testDB)
	listings := repositories.NewListingRepository(testDB)
	mailer := &codeMailer{}
	otp := services.NewOTPService(repositories.NewCodeRepository(testDB), mailer, otpConfig, logger)
	catalog := services.NewCatalogService(listings, logger)
	wallet := services.NewWalletService(repositories.NewLedgerRepository(testDB), listings, users, otp, logger, pkglogger.NewAuditLogger(logger))

	seller, buyer := createUser(t, users), createUser(t, users)
	listing, err := catalog.CreateListing(ctx, seller.ID, services.CreateListingInput{
		Title:   "Tent",
		Price:   decimal.RequireFromString("50.00"),
		Publish: true,
	})
	require.NoError(t, err)
	_, err = wallet.Deposit(ctx, buyer.ID, decimal.RequireFromString("100.00"))
	require.NoError(t, err)

	intent, err := wallet.InitiatePurchase(ctx, buyer.ID, listing.ID)
	require.NoError(t, err)
	code := mailer.code()

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := wallet.ConfirmPurchase(ctx, buyer.ID, intent.Reference, code)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, models.ErrConflict), "losers see a conflict, got %v", err)
	}
	assert.Equal(t, 1, wins)

	var purchases int
	require.NoError(t, testDB.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM purchases WHERE listing_id = $1`, listing.ID).Scan(&purchases))
	assert.Equal(t, 1, purchases)

	rows, err := testDB.Pool.Query(ctx,
		`SELECT transaction_type FROM transactions WHERE reference_id = $1 ORDER BY transaction_type`, intent.Reference)
	require.NoError(t, err)
	var types []string
	for rows.Next() {
		var kind string
		require.NoError(t, rows.Scan(&kind))
		types = append(types, kind)
	}
	require.NoError(t, rows.Err())
	rows.Close()
	assert.Equal(t, []string{"PURCHASE", "SALE"}, types)

	buyerWallet, err := wallet.GetWallet(ctx, buyer.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("50.00").Equal(buyerWallet.Balance), "buyer balance %s", buyerWallet.Balance)

	sellerWallet, err := wallet.GetWallet(ctx, seller.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("50.00").Equal(sellerWallet.Balance), "seller balance %s", sellerWallet.Balance)
}
