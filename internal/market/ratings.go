package market

import (
	"context"
	"fmt"
	"strings"

	"silink/internal/access"
	"silink/internal/apperr"
	"silink/internal/repo"

	"github.com/shopspring/decimal"
)

// RatingInput is a rating submitted by the caller.
type RatingInput struct {
	RatedID string  `json:"ratedId"`
	ShopID  *string `json:"shopId"`
	Rating  int     `json:"rating"`
	Comment *string `json:"comment"`
}

// RatingSummary lists a user's ratings with their mean.
type RatingSummary struct {
	Ratings []repo.Rating   `json:"ratings"`
	Average decimal.Decimal `json:"average"`
}

// Rate appends a rating and refreshes the shop's derived rating when one is referenced.
func (s *Service) Rate(ctx context.Context, caller access.Principal, in RatingInput) (*repo.Rating, error) {
	if caller.UserID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	ratedID, err := required("ratedId", in.RatedID)
	if err != nil {
		return nil, err
	}
	if ratedID == caller.UserID {
		return nil, apperr.Invalid("ratedId", "cannot rate yourself")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperr.Invalid("rating", "must be between 1 and 5")
	}
	if _, err := s.store.GetUser(ctx, ratedID); err != nil {
		return nil, fmt.Errorf("rated user %s: %w", ratedID, err)
	}

	var shopID *string
	if in.ShopID != nil && strings.TrimSpace(*in.ShopID) != "" {
		id := strings.TrimSpace(*in.ShopID)
		shop, err := s.store.GetShop(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("rated shop %s: %w", id, err)
		}
		if shop.OwnerID != ratedID {
			return nil, apperr.Invalid("shopId", "shop does not belong to the rated user")
		}
		shopID = &id
	}

	rating, err := s.store.InsertRating(ctx, repo.Rating{
		RaterID: caller.UserID,
		RatedID: ratedID,
		ShopID:  shopID,
		Rating:  in.Rating,
		Comment: trimmed(in.Comment),
	})
	if err != nil {
		return nil, fmt.Errorf("create rating: %w", err)
	}
	if shopID != nil {
		if err := s.store.RefreshShopRating(ctx, *shopID); err != nil {
			s.logger.Warn("refresh shop rating failed", "error", err, "shop_id", *shopID)
		}
	}
	return rating, nil
}

// Ratings returns every rating ratedID received and their average, 0 when none.
func (s *Service) Ratings(ctx context.Context, ratedID string) (*RatingSummary, error) {
	ratings, err := s.store.ListRatings(ctx, ratedID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	return &RatingSummary{Ratings: ratings, Average: averageRating(ratings)}, nil
}

func averageRating(ratings []repo.Rating) decimal.Decimal {
	if len(ratings) == 0 {
		return decimal.Zero
	}
	var sum int64
	for _, r := range ratings {
		sum += int64(r.Rating)
	}
	return decimal.NewFromInt(sum).DivRound(decimal.NewFromInt(int64(len(ratings))), 2)
}
