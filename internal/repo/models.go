package repo

import (
	"time"

	"silink/internal/access"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is attached to payments that do not name one.
const DefaultCurrency = "NGN"

// User represents the users table row.
type User struct {
	ID              string      `json:"id"`
	Email           *string     `json:"email"`
	FirstName       *string     `json:"firstName"`
	LastName        *string     `json:"lastName"`
	ProfileImageURL *string     `json:"profileImageUrl"`
	Role            access.Role `json:"role"`
	IsActive        bool        `json:"isActive"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// UserProfile carries data used to upsert a user. Nil fields keep the stored value.
type UserProfile struct {
	ID              string
	Email           *string
	FirstName       *string
	LastName        *string
	ProfileImageURL *string
	Role            *access.Role
}

// Shop represents a row in shops table.
type Shop struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	Title       string          `json:"title"`
	Description *string         `json:"description"`
	Category    string          `json:"category"`
	Rating      decimal.Decimal `json:"rating"`
	IsActive    bool            `json:"isActive"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// ShopPatch lists the mutable shop columns; nil fields are left untouched.
type ShopPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	IsActive    *bool   `json:"isActive"`
}

// JobStatus is the lifecycle state of a job posting.
type JobStatus string

const (
	JobOpen       JobStatus = "open"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
)

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobOpen, JobInProgress, JobCompleted, JobCancelled:
		return true
	}
	return false
}

// Job represents a row in jobs table.
type Job struct {
	ID          string           `json:"id"`
	PosterID    string           `json:"posterId"`
	Title       string           `json:"title"`
	Description *string          `json:"description"`
	Category    string           `json:"category"`
	Budget      *decimal.Decimal `json:"budget"`
	Deadline    *time.Time       `json:"deadline"`
	Status      JobStatus        `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// JobPatch lists the mutable job columns.
type JobPatch struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Budget      *decimal.Decimal `json:"budget"`
	Deadline    *time.Time       `json:"deadline"`
	Status      *JobStatus       `json:"status"`
}

// ChatMessage is a directed message between two users.
type ChatMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Message    string    `json:"message"`
	ImageURL   *string   `json:"imageUrl"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"isRead"`
}

// Conversation summarises the exchange between a user and one counterpart.
type Conversation struct {
	UserID      string      `json:"userId"`
	User        *User       `json:"user"`
	LastMessage ChatMessage `json:"lastMessage"`
	UnreadCount int         `json:"unreadCount"`
}

// Cursor points at a message in a conversation; pages continue strictly after it.
type Cursor struct {
	Timestamp time.Time
	ID        string
}

// Page bounds a history query. A zero Page returns the full history.
type Page struct {
	After *Cursor
	Limit int
}

// PaymentStatus is the state of a payment; only pending is non-terminal.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentCancelled
}

// Payment represents a row in payments table.
type Payment struct {
	ID             string          `json:"id"`
	PayerID        string          `json:"payerId"`
	ReceiverID     *string         `json:"receiverId"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Status         PaymentStatus   `json:"status"`
	TransactionRef string          `json:"transactionRef"`
	FlutterwaveRef *string         `json:"flutterwaveRef"`
	Description    *string         `json:"description"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// IsWithdrawal reports whether the payment moves money out of the payer's account.
func (p Payment) IsWithdrawal() bool {
	return p.ReceiverID == nil
}

// Transition requests a pending → terminal change of the payment keyed by TransactionRef.
type Transition struct {
	TransactionRef string
	GatewayRef     *string
	Status         PaymentStatus
}

// VirtualAccount represents a row in virtual_accounts table.
type VirtualAccount struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	AccountNumber string          `json:"accountNumber"`
	BankName      string          `json:"bankName"`
	AccountName   string          `json:"accountName"`
	Balance       decimal.Decimal `json:"balance"`
	IsActive      bool            `json:"isActive"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Rating represents a row in ratings table.
type Rating struct {
	ID        string    `json:"id"`
	RaterID   string    `json:"raterId"`
	RatedID   string    `json:"ratedId"`
	ShopID    *string   `json:"shopId"`
	Rating    int       `json:"rating"`
	Comment   *string   `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

// Analytics aggregates platform-wide counters.
type Analytics struct {
	UsersByRole  map[access.Role]int64 `json:"usersByRole"`
	TotalUsers   int64                 `json:"totalUsers"`
	TotalShops   int64                 `json:"totalShops"`
	TotalJobs    int64                 `json:"totalJobs"`
	TotalRevenue decimal.Decimal       `json:"totalRevenue"`
}
