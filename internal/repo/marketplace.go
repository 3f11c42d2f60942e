package repo

import (
	"context"
	"fmt"

	"silink/internal/apperr"

	"github.com/jackc/pgx/v5"
)

const (
	shopColumns   = `id, owner_id, title, description, category, rating, is_active, created_at`
	jobColumns    = `id, poster_id, title, description, category, budget, deadline, status, created_at`
	ratingColumns = `id, rater_id, rated_id, shop_id, rating, comment, created_at`
)

// ListShops returns active shops, newest first, optionally filtered by category.
func (r *PostgresRepository) ListShops(ctx context.Context, category string) ([]Shop, error) {
	q := `SELECT ` + shopColumns + ` FROM shops
WHERE is_active AND ($1 = '' OR category = $1)
ORDER BY created_at DESC;`
	return r.queryShops(ctx, q, normaliseCategory(category))
}

// ListShopsByOwner returns every shop of ownerID regardless of status.
func (r *PostgresRepository) ListShopsByOwner(ctx context.Context, ownerID string) ([]Shop, error) {
	q := `SELECT ` + shopColumns + ` FROM shops WHERE owner_id = $1 ORDER BY created_at DESC;`
	return r.queryShops(ctx, q, ownerID)
}

// GetShop returns a shop by id.
func (r *PostgresRepository) GetShop(ctx context.Context, id string) (*Shop, error) {
	q := `SELECT ` + shopColumns + ` FROM shops WHERE id = $1 LIMIT 1;`
	s, err := scanShop(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("get shop: %w", notFound(err))
	}
	return s, nil
}

// InsertShop stores a new shop.
func (r *PostgresRepository) InsertShop(ctx context.Context, shop Shop) (*Shop, error) {
	q := `
INSERT INTO shops (id, owner_id, title, description, category, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + shopColumns + `;`
	s, err := scanShop(r.pool.QueryRow(ctx, q, newID(), shop.OwnerID, shop.Title, shop.Description, shop.Category, shop.IsActive, now()))
	if err != nil {
		return nil, fmt.Errorf("insert shop: %w", err)
	}
	return s, nil
}

// UpdateShop applies patch to the shop.
func (r *PostgresRepository) UpdateShop(ctx context.Context, id string, patch ShopPatch) (*Shop, error) {
	q := `
UPDATE shops SET
    title = COALESCE($2, title),
    description = COALESCE($3, description),
    category = COALESCE($4, category),
    is_active = COALESCE($5, is_active)
WHERE id = $1
RETURNING ` + shopColumns + `;`
	s, err := scanShop(r.pool.QueryRow(ctx, q, id, patch.Title, patch.Description, patch.Category, patch.IsActive))
	if err != nil {
		return nil, fmt.Errorf("update shop: %w", notFound(err))
	}
	return s, nil
}

// DeleteShop removes a shop and its ratings' shop reference.
func (r *PostgresRepository) DeleteShop(ctx context.Context, id string) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE ratings SET shop_id = NULL WHERE shop_id = $1`, id); err != nil {
			return fmt.Errorf("detach shop ratings: %w", err)
		}
		ct, err := tx.Exec(ctx, `DELETE FROM shops WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete shop: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("shop %s: %w", id, apperr.ErrNotFound)
		}
		return nil
	})
}

func (r *PostgresRepository) queryShops(ctx context.Context, q string, args ...any) ([]Shop, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}
	defer rows.Close()

	shops := []Shop{}
	for rows.Next() {
		s, err := scanShop(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shop: %w", err)
		}
		shops = append(shops, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shops: %w", err)
	}
	return shops, nil
}

// ListJobs returns open jobs, newest first, optionally filtered by category.
func (r *PostgresRepository) ListJobs(ctx context.Context, category string) ([]Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs
WHERE status = 'open' AND ($1 = '' OR category = $1)
ORDER BY created_at DESC;`
	return r.queryJobs(ctx, q, normaliseCategory(category))
}

// ListJobsByPoster returns every job posted by posterID.
func (r *PostgresRepository) ListJobsByPoster(ctx context.Context, posterID string) ([]Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE poster_id = $1 ORDER BY created_at DESC;`
	return r.queryJobs(ctx, q, posterID)
}

// GetJob returns a job by id.
func (r *PostgresRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 LIMIT 1;`
	j, err := scanJob(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("get job: %w", notFound(err))
	}
	return j, nil
}

// InsertJob stores a new job.
func (r *PostgresRepository) InsertJob(ctx context.Context, job Job) (*Job, error) {
	if job.Status == "" {
		job.Status = JobOpen
	}
	q := `
INSERT INTO jobs (id, poster_id, title, description, category, budget, deadline, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + jobColumns + `;`
	j, err := scanJob(r.pool.QueryRow(ctx, q, newID(), job.PosterID, job.Title, job.Description, job.Category, job.Budget, job.Deadline, string(job.Status), now()))
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return j, nil
}

// UpdateJob applies patch to the job.
func (r *PostgresRepository) UpdateJob(ctx context.Context, id string, patch JobPatch) (*Job, error) {
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	q := `
UPDATE jobs SET
    title = COALESCE($2, title),
    description = COALESCE($3, description),
    category = COALESCE($4, category),
    budget = COALESCE($5, budget),
    deadline = COALESCE($6, deadline),
    status = COALESCE($7, status)
WHERE id = $1
RETURNING ` + jobColumns + `;`
	j, err := scanJob(r.pool.QueryRow(ctx, q, id, patch.Title, patch.Description, patch.Category, patch.Budget, patch.Deadline, status))
	if err != nil {
		return nil, fmt.Errorf("update job: %w", notFound(err))
	}
	return j, nil
}

// DeleteJob removes a job.
func (r *PostgresRepository) DeleteJob(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) queryJobs(ctx context.Context, q string, args ...any) ([]Job, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// InsertRating appends a rating.
func (r *PostgresRepository) InsertRating(ctx context.Context, rating Rating) (*Rating, error) {
	q := `
INSERT INTO ratings (id, rater_id, rated_id, shop_id, rating, comment, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + ratingColumns + `;`
	var out Rating
	err := r.pool.QueryRow(ctx, q, newID(), rating.RaterID, rating.RatedID, rating.ShopID, rating.Rating, rating.Comment, now()).
		Scan(&out.ID, &out.RaterID, &out.RatedID, &out.ShopID, &out.Rating, &out.Comment, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert rating: %w", err)
	}
	return &out, nil
}

// ListRatings returns the ratings received by ratedID, newest first.
func (r *PostgresRepository) ListRatings(ctx context.Context, ratedID string) ([]Rating, error) {
	q := `SELECT ` + ratingColumns + ` FROM ratings WHERE rated_id = $1 ORDER BY created_at DESC;`
	rows, err := r.pool.Query(ctx, q, ratedID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	ratings := []Rating{}
	for rows.Next() {
		var rt Rating
		if err := rows.Scan(&rt.ID, &rt.RaterID, &rt.RatedID, &rt.ShopID, &rt.Rating, &rt.Comment, &rt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		ratings = append(ratings, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return ratings, nil
}

// RefreshShopRating recomputes the derived shop rating from its ratings.
func (r *PostgresRepository) RefreshShopRating(ctx context.Context, shopID string) error {
	const q = `
UPDATE shops
SET rating = COALESCE((SELECT ROUND(AVG(rating)::numeric, 2) FROM ratings WHERE shop_id = $1), 0)
WHERE id = $1;`
	ct, err := r.pool.Exec(ctx, q, shopID)
	if err != nil {
		return fmt.Errorf("refresh shop rating: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("shop %s: %w", shopID, apperr.ErrNotFound)
	}
	return nil
}

func scanShop(row rowScanner) (*Shop, error) {
	var s Shop
	if err := row.Scan(&s.ID, &s.OwnerID, &s.Title, &s.Description, &s.Category, &s.Rating, &s.IsActive, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	if err := row.Scan(&j.ID, &j.PosterID, &j.Title, &j.Description, &j.Category, &j.Budget, &j.Deadline, &j.Status, &j.CreatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func normaliseCategory(category string) string {
	if category == "all" {
		return ""
	}
	return category
}
