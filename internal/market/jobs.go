package market

import (
	"context"
	"fmt"
	"time"

	"silink/internal/access"
	"silink/internal/apperr"
	"silink/internal/repo"

	"github.com/shopspring/decimal"
)

// JobInput describes a new job posting.
type JobInput struct {
	Title       string           `json:"title"`
	Description *string          `json:"description"`
	Category    string           `json:"category"`
	Budget      *decimal.Decimal `json:"budget"`
	Deadline    *time.Time       `json:"deadline"`
}

// Jobs lists open jobs, optionally filtered by category.
func (s *Service) Jobs(ctx context.Context, category string) ([]repo.Job, error) {
	jobs, err := s.store.ListJobs(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Job returns a job by id.
func (s *Service) Job(ctx context.Context, id string) (*repo.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	return job, nil
}

// MyJobs lists every job posted by the caller.
func (s *Service) MyJobs(ctx context.Context, caller access.Principal) ([]repo.Job, error) {
	if caller.UserID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	jobs, err := s.store.ListJobsByPoster(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list own jobs: %w", err)
	}
	return jobs, nil
}

// CreateJob posts an open job on behalf of the caller.
func (s *Service) CreateJob(ctx context.Context, caller access.Principal, in JobInput) (*repo.Job, error) {
	if caller.UserID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	title, err := required("title", in.Title)
	if err != nil {
		return nil, err
	}
	category, err := required("category", in.Category)
	if err != nil {
		return nil, err
	}
	if err := validateBudget(in.Budget); err != nil {
		return nil, err
	}
	job, err := s.store.InsertJob(ctx, repo.Job{
		PosterID:    caller.UserID,
		Title:       title,
		Description: trimmed(in.Description),
		Category:    category,
		Budget:      in.Budget,
		Deadline:    in.Deadline,
		Status:      repo.JobOpen,
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.logger.Info("job posted", "job_id", job.ID, "poster_id", caller.UserID)
	return job, nil
}

// UpdateJob patches a job posted by the caller, or any job for admins.
func (s *Service) UpdateJob(ctx context.Context, caller access.Principal, id string, patch repo.JobPatch) (*repo.Job, error) {
	current, err := s.store.GetJob(ctx, id)
	posterID := ""
	if current != nil {
		posterID = current.PosterID
	}
	if err := guardOwned(caller, posterID, err); err != nil {
		return nil, fmt.Errorf("update job %s: %w", id, err)
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
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperr.Invalid("status", fmt.Sprintf("unknown status %q", *patch.Status))
	}
	if err := validateBudget(patch.Budget); err != nil {
		return nil, err
	}
	patch.Title = trimmed(patch.Title)
	patch.Category = trimmed(patch.Category)
	patch.Description = trimmed(patch.Description)

	job, err := s.store.UpdateJob(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update job %s: %w", id, err)
	}
	return job, nil
}

// DeleteJob removes a job posted by the caller, or any job for admins.
func (s *Service) DeleteJob(ctx context.Context, caller access.Principal, id string) error {
	current, err := s.store.GetJob(ctx, id)
	posterID := ""
	if current != nil {
		posterID = current.PosterID
	}
	if err := guardOwned(caller, posterID, err); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if err := s.store.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func validateBudget(b *decimal.Decimal) error {
	if b == nil {
		return nil
	}
	if b.IsNegative() {
		return apperr.Invalid("budget", "must not be negative")
	}
	if !b.Equal(b.Round(2)) {
		return apperr.Invalid("budget", "must have at most two decimal places")
	}
	return nil
}
