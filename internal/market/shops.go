package market

import (
	"context"
	"fmt"

	"silink/internal/access"
	"silink/internal/apperr"
	"silink/internal/repo"
)

// ShopInput describes a new shop.
type ShopInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Category    string  `json:"category"`
}

// Shops lists active shops, optionally filtered by category.
func (s *Service) Shops(ctx context.Context, category string) ([]repo.Shop, error) {
	shops, err := s.store.ListShops(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}
	return shops, nil
}

// Shop returns a shop by id.
func (s *Service) Shop(ctx context.Context, id string) (*repo.Shop, error) {
	shop, err := s.store.GetShop(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("shop %s: %w", id, err)
	}
	return shop, nil
}

// MyShops lists every shop owned by the caller.
func (s *Service) MyShops(ctx context.Context, caller access.Principal) ([]repo.Shop, error) {
	if caller.UserID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	shops, err := s.store.ListShopsByOwner(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list own shops: %w", err)
	}
	return shops, nil
}

// CreateShop opens a shop owned by the caller.
func (s *Service) CreateShop(ctx context.Context, caller access.Principal, in ShopInput) (*repo.Shop, error) {
	if err := access.Require(caller.Role, access.CreateShop); err != nil {
		return nil, err
	}
	title, err := required("title", in.Title)
	if err != nil {
		return nil, err
	}
	category, err := required("category", in.Category)
	if err != nil {
		return nil, err
	}
	shop, err := s.store.InsertShop(ctx, repo.Shop{
		OwnerID:     caller.UserID,
		Title:       title,
		Description: trimmed(in.Description),
		Category:    category,
		IsActive:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("create shop: %w", err)
	}
	s.logger.Info("shop created", "shop_id", shop.ID, "owner_id", caller.UserID)
	return shop, nil
}

// UpdateShop patches a shop owned by the caller, or any shop for admins.
func (s *Service) UpdateShop(ctx context.Context, caller access.Principal, id string, patch repo.ShopPatch) (*repo.Shop, error) {
	current, err := s.store.GetShop(ctx, id)
	ownerID := ""
	if current != nil {
		ownerID = current.OwnerID
	}
	if err := guardOwned(caller, ownerID, err); err != nil {
		return nil, fmt.Errorf("update shop %s: %w", id, err)
	}
	if patch.Title != nil {
		if _, err := required("title", *patch.Title); err != nil {
			return nil, err
		}
	}
	if patch.Category != nil {
		if _, err := required("category", *patch.Category); err != nil {
			return nil, err
		}
	}
	patch.Title = trimmed(patch.Title)
	patch.Category = trimmed(patch.Category)
	patch.Description = trimmed(patch.Description)

	shop, err := s.store.UpdateShop(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update shop %s: %w", id, err)
	}
	return shop, nil
}

// DeleteShop removes a shop owned by the caller, or any shop for admins.
func (s *Service) DeleteShop(ctx context.Context, caller access.Principal, id string) error {
	current, err := s.store.GetShop(ctx, id)
	ownerID := ""
	if current != nil {
		ownerID = current.OwnerID
	}
	if err := guardOwned(caller, ownerID, err); err != nil {
		return fmt.Errorf("delete shop %s: %w", id, err)
	}
	if err := s.store.DeleteShop(ctx, id); err != nil {
		return fmt.Errorf("delete shop %s: %w", id, err)
	}
	s.logger.Info("shop deleted", "shop_id", id, "by", caller.UserID)
	return nil
}
