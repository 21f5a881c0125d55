package routes

import (
	"time"

	"github.com/BradenHooton/agora/internal/auth"
	"github.com/BradenHooton/agora/internal/handlers"
	"github.com/BradenHooton/agora/internal/middleware"
	"github.com/BradenHooton/agora/internal/realtime"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// requestTimeout bounds plain HTTP handlers. The websocket route is exempt.
const requestTimeout = 60 * time.Second

// Handlers groups everything RegisterRoutes mounts.
type Handlers struct {
	Auth     *handlers.AuthHandler
	Users    *handlers.UserHandler
	Messages *handlers.MessageHandler
	Trust    *handlers.TrustHandler
	Wallet   *handlers.WalletHandler
	Listings *handlers.ListingHandler
	Admin    *handlers.AdminHandler
	Chat     *realtime.Handler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, tokenManager *auth.TokenManager, masterKey string) {
	authLimit := middleware.RateLimitByIP(middleware.DefaultAuthRateLimit())
	codeLimit := middleware.RateLimitByIP(middleware.DefaultCodeRateLimit())
	userLimit := middleware.RateLimitByUser(middleware.DefaultUserRateLimit())

	router.With(auth.Authenticate(tokenManager)).Get("/ws/chat", h.Chat.ServeWS)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout))

		// Public routes - no authentication required
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimit).Post("/register", h.Auth.Register)
			r.With(authLimit).Post("/login", h.Auth.Login)
			r.With(authLimit).Post("/refresh", h.Auth.Refresh)
			r.With(codeLimit).Post("/verify-email", h.Auth.VerifyEmail)
			r.With(codeLimit).Post("/resend-verification", h.Auth.ResendVerification)
			r.With(codeLimit).Post("/password-reset/request", h.Auth.RequestPasswordReset)
			r.With(codeLimit).Post("/password-reset/confirm", h.Auth.ResetPassword)
		})

		// Protected routes - authentication required
		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate(tokenManager))
			r.Use(userLimit)

			r.Get("/users/me", h.Users.GetMe)
			r.Get("/users/me/profile", h.Users.GetProfile)
			r.Get("/users/{id}", h.Users.GetUser)

			r.Post("/messages", h.Messages.SendDirect)
			r.Get("/messages/{peerID}", h.Messages.Conversation)
			r.Delete("/messages/{id}", h.Messages.DeleteMessage)
			r.Get("/attachments/{id}", h.Messages.Attachment)

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", h.Messages.ListGroups)
				r.Post("/", h.Messages.CreateGroup)
				r.Get("/{id}", h.Messages.GetGroup)
				r.Delete("/{id}", h.Messages.DeleteGroup)
				r.Post("/{id}/members", h.Messages.AddMembers)
				r.Delete("/{id}/members/{userID}", h.Messages.RemoveMember)
				r.Get("/{id}/messages", h.Messages.GroupMessages)
				r.Post("/{id}/messages", h.Messages.SendGroupMessage)
			})

			r.Get("/blocks", h.Trust.ListBlocked)
			r.Post("/blocks", h.Trust.Block)
			r.Delete("/blocks/{userID}", h.Trust.Unblock)

			r.Get("/friends", h.Trust.ListFriends)
			r.Delete("/friends/{userID}", h.Trust.RemoveFriend)
			r.Get("/friends/requests", h.Trust.PendingRequests)
			r.Post("/friends/requests", h.Trust.SendFriendRequest)
			r.Post("/friends/requests/{id}/respond", h.Trust.RespondFriendRequest)

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", h.Wallet.GetWallet)
				r.Get("/transactions", h.Wallet.Transactions)
				r.Get("/purchases", h.Wallet.Purchases)
				r.Get("/sales", h.Wallet.Sales)
				r.Post("/deposit", h.Wallet.Deposit)
				r.Post("/withdraw", h.Wallet.Withdraw)
			})
			r.Post("/purchases", h.Wallet.InitiatePurchase)
			r.With(codeLimit).Post("/purchases/confirm", h.Wallet.ConfirmPurchase)

			r.Route("/listings", func(r chi.Router) {
				r.Get("/", h.Listings.ListActive)
				r.Post("/", h.Listings.Create)
				r.Get("/mine", h.Listings.ListMine)
				r.Get("/{id}", h.Listings.Get)
				r.Post("/{id}/publish", h.Listings.Publish)
				r.Post("/{id}/withdraw", h.Listings.Withdraw)
			})
		})

		// Admin routes - admin token or operator master key
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdminOrMasterKey(tokenManager, masterKey))

			r.Get("/threats", h.Admin.ListLocked)
			r.Post("/threats/{username}/unlock", h.Admin.Unlock)
			r.Delete("/threats/{username}", h.Admin.DeleteHistory)

			r.Get("/users", h.Admin.ListUsers)
			r.Put("/users/{id}/verification", h.Admin.SetVerification)
			r.Put("/users/{id}/active", h.Admin.SetActive)

			r.Post("/listings/{id}/flag", h.Admin.FlagListing)
		})
	})
}
