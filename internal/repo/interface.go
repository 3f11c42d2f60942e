package repo

import (
	"context"
	"io/fs"

	"silink/internal/access"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Users
	UpsertUser(ctx context.Context, profile UserProfile) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsersByRole(ctx context.Context, role access.Role) ([]User, error)
	UpdateUserStatus(ctx context.Context, id string, active bool) error

	// Shops
	ListShops(ctx context.Context, category string) ([]Shop, error)
	GetShop(ctx context.Context, id string) (*Shop, error)
	InsertShop(ctx context.Context, shop Shop) (*Shop, error)
	UpdateShop(ctx context.Context, id string, patch ShopPatch) (*Shop, error)
	DeleteShop(ctx context.Context, id string) error
	ListShopsByOwner(ctx context.Context, ownerID string) ([]Shop, error)

	// Jobs
	ListJobs(ctx context.Context, category string) ([]Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	InsertJob(ctx context.Context, job Job) (*Job, error)
	UpdateJob(ctx context.Context, id string, patch JobPatch) (*Job, error)
	DeleteJob(ctx context.Context, id string) error
	ListJobsByPoster(ctx context.Context, posterID string) ([]Job, error)

	// Chat
	InsertChatMessage(ctx context.Context, msg ChatMessage) (*ChatMessage, error)
	ListConversation(ctx context.Context, userID, counterpartID string, page Page) ([]ChatMessage, error)
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	MarkConversationRead(ctx context.Context, readerID, counterpartID string) (int64, error)

	// Payments
	InsertPayment(ctx context.Context, p Payment) (*Payment, error)
	GetPaymentByRef(ctx context.Context, ref string) (*Payment, error)
	ListPaymentsForUser(ctx context.Context, userID string) ([]Payment, error)
	TransitionPayment(ctx context.Context, t Transition) (*Payment, bool, error)

	// Virtual accounts
	GetVirtualAccount(ctx context.Context, userID string) (*VirtualAccount, error)
	InsertVirtualAccountIfAbsent(ctx context.Context, acct VirtualAccount) (*VirtualAccount, error)

	// Ratings
	InsertRating(ctx context.Context, r Rating) (*Rating, error)
	ListRatings(ctx context.Context, ratedID string) ([]Rating, error)
	RefreshShopRating(ctx context.Context, shopID string) error

	// Analytics
	Analytics(ctx context.Context) (*Analytics, error)
}
