// Package market implements the profile, shop, job and rating rules of the marketplace.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"silink/internal/access"
	"silink/internal/apperr"
	"silink/internal/repo"
)

// Store is the slice of the repository the marketplace needs.
type Store interface {
	UpsertUser(ctx context.Context, profile repo.UserProfile) (*repo.User, error)
	GetUser(ctx context.Context, id string) (*repo.User, error)

	ListShops(ctx context.Context, category string) ([]repo.Shop, error)
	GetShop(ctx context.Context, id string) (*repo.Shop, error)
	InsertShop(ctx context.Context, shop repo.Shop) (*repo.Shop, error)
	UpdateShop(ctx context.Context, id string, patch repo.ShopPatch) (*repo.Shop, error)
	DeleteShop(ctx context.Context, id string) error
	ListShopsByOwner(ctx context.Context, ownerID string) ([]repo.Shop, error)

	ListJobs(ctx context.Context, category string) ([]repo.Job, error)
	GetJob(ctx context.Context, id string) (*repo.Job, error)
	InsertJob(ctx context.Context, job repo.Job) (*repo.Job, error)
	UpdateJob(ctx context.Context, id string, patch repo.JobPatch) (*repo.Job, error)
	DeleteJob(ctx context.Context, id string) error
	ListJobsByPoster(ctx context.Context, posterID string) ([]repo.Job, error)

	InsertRating(ctx context.Context, r repo.Rating) (*repo.Rating, error)
	ListRatings(ctx context.Context, ratedID string) ([]repo.Rating, error)
	RefreshShopRating(ctx context.Context, shopID string) error
}

// Service implements marketplace operations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// New creates the marketplace service.
func New(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With("component", "market"),
	}
}

// ProfileInput updates the caller's own profile; nil fields are kept.
type ProfileInput struct {
	Email           *string `json:"email"`
	FirstName       *string `json:"firstName"`
	LastName        *string `json:"lastName"`
	ProfileImageURL *string `json:"profileImageUrl"`
	Role            *string `json:"role"`
}

// Profile returns the caller's user row.
func (s *Service) Profile(ctx context.Context, caller access.Principal) (*repo.User, error) {
	if caller.UserID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	u, err := s.store.GetUser(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return u, nil
}

// UpdateProfile upserts the caller's profile. Users may switch between student and
// provider; admin roles can only be handed out by admins.
func (s *Service) UpdateProfile(ctx context.Context, caller access.Principal, in ProfileInput) (*repo.User, error) {
	if caller.UserID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	profile := repo.UserProfile{
		ID:              caller.UserID,
		Email:           trimmed(in.Email),
		FirstName:       trimmed(in.FirstName),
		LastName:        trimmed(in.LastName),
		ProfileImageURL: trimmed(in.ProfileImageURL),
	}
	if in.Role != nil {
		role, err := access.ParseRole(*in.Role)
		if err != nil {
			return nil, err
		}
		if role.IsAdmin() && !caller.Role.IsAdmin() {
			return nil, fmt.Errorf("assign role %s: %w", role, apperr.ErrForbidden)
		}
		profile.Role = &role
	}
	if profile.Email != nil && !strings.Contains(*profile.Email, "@") {
		return nil, apperr.Invalid("email", "must be an email address")
	}

	u, err := s.store.UpsertUser(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

// guardOwned resolves ownership for a record fetched by lookup. Non-admin callers get
// ErrForbidden for both foreign and missing records.
func guardOwned(caller access.Principal, ownerID string, lookupErr error) error {
	if lookupErr != nil {
		if errors.Is(lookupErr, apperr.ErrNotFound) && !caller.Role.IsAdmin() {
			return apperr.ErrForbidden
		}
		return lookupErr
	}
	return access.RequireOwnerOrAdmin(caller.Role, caller.UserID, ownerID)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

func required(field string, s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", apperr.Invalid(field, "is required")
	}
	return t, nil
}
