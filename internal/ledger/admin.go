package ledger

import (
	"context"
	"fmt"

	"silink/internal/access"
	"silink/internal/apperr"
	"silink/internal/repo"
)

// Analytics aggregates platform counters for admins. Results are cached briefly when a
// cache is configured.
func (s *Service) Analytics(ctx context.Context, caller access.Principal) (*repo.Analytics, error) {
	if err := access.Require(caller.Role, access.ViewAnalytics); err != nil {
		return nil, err
	}

	if s.cache != nil {
		var cached repo.Analytics
		ok, err := s.cache.GetJSON(ctx, analyticsKey, &cached)
		if err != nil {
			s.logger.Warn("read analytics cache failed", "error", err)
		} else if ok {
			return &cached, nil
		}
	}

	out, err := s.store.Analytics(ctx)
	if err != nil {
		return nil, fmt.Errorf("compute analytics: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, analyticsKey, out, analyticsTTL); err != nil {
			s.logger.Warn("write analytics cache failed", "error", err)
		}
	}
	return out, nil
}

// ListUsers returns users with the given role, or all users for an empty role.
func (s *Service) ListUsers(ctx context.Context, caller access.Principal, role string) ([]repo.User, error) {
	if err := access.Require(caller.Role, access.ListUsers); err != nil {
		return nil, err
	}
	var filter access.Role
	if role != "" && role != "all" {
		parsed, err := access.ParseRole(role)
		if err != nil {
			return nil, err
		}
		filter = parsed
	}
	users, err := s.store.ListUsersByRole(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SetUserStatus activates or deactivates another user.
func (s *Service) SetUserStatus(ctx context.Context, caller access.Principal, targetID string, active bool) (*repo.User, error) {
	if err := access.Require(caller.Role, access.ManageUserStatus); err != nil {
		return nil, err
	}
	if targetID == "" {
		return nil, apperr.Invalid("id", "is required")
	}
	if targetID == caller.UserID && !active {
		return nil, apperr.Invalid("id", "cannot deactivate yourself")
	}
	if err := s.store.UpdateUserStatus(ctx, targetID, active); err != nil {
		return nil, fmt.Errorf("set user status: %w", err)
	}
	s.logger.Info("user status changed", "target_id", targetID, "active", active, "by", caller.UserID)
	u, err := s.store.GetUser(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("reload user: %w", err)
	}
	return u, nil
}
