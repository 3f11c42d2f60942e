package market

import (
	"context"
	"path/filepath"
	"testing"

	"silink/internal/access"
	"silink/internal/apperr"
	"silink/internal/logging"
	"silink/internal/repo"
	"silink/migrations"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *repo.SQLiteRepository) {
	t.Helper()
	ctx := context.Background()
	store, err := repo.NewSQLite(ctx, filepath.Join(t.TempDir(), "market.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.RunMigrations(ctx, migrations.SQLiteFiles))
	return New(store, logging.Discard()), store
}

func seed(t *testing.T, store *repo.SQLiteRepository, id string, role access.Role) access.Principal {
	t.Helper()
	_, err := store.UpsertUser(context.Background(), repo.UserProfile{ID: id, Role: &role})
	require.NoError(t, err)
	return access.Principal{UserID: id, Role: role, Active: true}
}

func ptr[T any](v T) *T { return &v }

func TestUpdateProfileRoles(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	student := seed(t, store, "s1", access.RoleStudent)
	admin := seed(t, store, "ad", access.RoleAdmin)

	u, err := svc.UpdateProfile(ctx, student, ProfileInput{FirstName: ptr(" Chioma "), Role: ptr("provider")})
	require.NoError(t, err)
	require.Equal(t, "Chioma", *u.FirstName)
	require.Equal(t, access.RoleProvider, u.Role)

	_, err = svc.UpdateProfile(ctx, student, ProfileInput{Role: ptr("admin")})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.UpdateProfile(ctx, student, ProfileInput{Email: ptr("not-an-email")})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "email", verr.Field)

	_, err = svc.UpdateProfile(ctx, student, ProfileInput{Role: ptr("wizard")})
	require.ErrorAs(t, err, &verr)

	u, err = svc.UpdateProfile(ctx, admin, ProfileInput{Role: ptr("super_admin")})
	require.NoError(t, err)
	require.Equal(t, access.RoleSuperAdmin, u.Role)

	u, err = svc.Profile(ctx, student)
	require.NoError(t, err)
	require.Equal(t, "s1", u.ID)
}

func TestShopOwnership(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	student := seed(t, store, "s1", access.RoleStudent)
	owner := seed(t, store, "p1", access.RoleProvider)
	rival := seed(t, store, "p2", access.RoleProvider)
	admin := seed(t, store, "ad", access.RoleAdmin)

	_, err := svc.CreateShop(ctx, student, ShopInput{Title: "Nope", Category: "food"})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.CreateShop(ctx, owner, ShopInput{Title: " ", Category: "food"})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "title", verr.Field)

	shop, err := svc.CreateShop(ctx, owner, ShopInput{Title: " Jollof Hub ", Category: "food"})
	require.NoError(t, err)
	require.Equal(t, "Jollof Hub", shop.Title)
	require.True(t, shop.IsActive)

	_, err = svc.UpdateShop(ctx, rival, shop.ID, repo.ShopPatch{Title: ptr("Mine now")})
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = svc.UpdateShop(ctx, rival, "missing", repo.ShopPatch{Title: ptr("x")})
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = svc.UpdateShop(ctx, admin, "missing", repo.ShopPatch{Title: ptr("x")})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	updated, err := svc.UpdateShop(ctx, owner, shop.ID, repo.ShopPatch{Description: ptr("Rice and more")})
	require.NoError(t, err)
	require.Equal(t, "Rice and more", *updated.Description)
	require.Equal(t, "Jollof Hub", updated.Title)

	mine, err := svc.MyShops(ctx, owner)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	require.ErrorIs(t, svc.DeleteShop(ctx, rival, shop.ID), apperr.ErrForbidden)
	require.NoError(t, svc.DeleteShop(ctx, admin, shop.ID))
	_, err = svc.Shop(ctx, shop.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestJobLifecycle(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	poster := seed(t, store, "s1", access.RoleStudent)
	other := seed(t, store, "s2", access.RoleStudent)

	_, err := svc.CreateJob(ctx, poster, JobInput{Title: "Logo", Category: "design", Budget: ptr(decimal.RequireFromString("-1"))})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "budget", verr.Field)

	job, err := svc.CreateJob(ctx, poster, JobInput{Title: "Logo", Category: "design", Budget: ptr(decimal.RequireFromString("15000.50"))})
	require.NoError(t, err)
	require.Equal(t, repo.JobOpen, job.Status)

	jobs, err := svc.Jobs(ctx, "design")
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	_, err = svc.UpdateJob(ctx, other, job.ID, repo.JobPatch{Status: ptr(repo.JobCancelled)})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.UpdateJob(ctx, poster, job.ID, repo.JobPatch{Status: ptr(repo.JobStatus("archived"))})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "status", verr.Field)

	job, err = svc.UpdateJob(ctx, poster, job.ID, repo.JobPatch{Status: ptr(repo.JobInProgress)})
	require.NoError(t, err)
	require.Equal(t, repo.JobInProgress, job.Status)

	mine, err := svc.MyJobs(ctx, poster)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	require.NoError(t, svc.DeleteJob(ctx, poster, job.ID))
	_, err = svc.Job(ctx, job.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRatings(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	s1 := seed(t, store, "s1", access.RoleStudent)
	s2 := seed(t, store, "s2", access.RoleStudent)
	owner := seed(t, store, "p1", access.RoleProvider)
	other := seed(t, store, "p2", access.RoleProvider)

	shop, err := svc.CreateShop(ctx, owner, ShopInput{Title: "Prints", Category: "printing"})
	require.NoError(t, err)
	otherShop, err := svc.CreateShop(ctx, other, ShopInput{Title: "Copies", Category: "printing"})
	require.NoError(t, err)

	var verr *apperr.ValidationError
	_, err = svc.Rate(ctx, owner, RatingInput{RatedID: owner.UserID, Rating: 5})
	require.ErrorAs(t, err, &verr)
	_, err = svc.Rate(ctx, s1, RatingInput{RatedID: owner.UserID, Rating: 6})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "rating", verr.Field)
	_, err = svc.Rate(ctx, s1, RatingInput{RatedID: owner.UserID, ShopID: &otherShop.ID, Rating: 4})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "shopId", verr.Field)
	_, err = svc.Rate(ctx, s1, RatingInput{RatedID: "ghost", Rating: 4})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Rate(ctx, s1, RatingInput{RatedID: owner.UserID, ShopID: &shop.ID, Rating: 5, Comment: ptr("fast")})
	require.NoError(t, err)
	_, err = svc.Rate(ctx, s2, RatingInput{RatedID: owner.UserID, ShopID: &shop.ID, Rating: 4})
	require.NoError(t, err)
	_, err = svc.Rate(ctx, s2, RatingInput{RatedID: owner.UserID, Rating: 4})
	require.NoError(t, err)

	summary, err := svc.Ratings(ctx, owner.UserID)
	require.NoError(t, err)
	require.Len(t, summary.Ratings, 3)
	require.True(t, summary.Average.Equal(decimal.RequireFromString("4.33")), summary.Average.String())

	refreshed, err := svc.Shop(ctx, shop.ID)
	require.NoError(t, err)
	require.True(t, refreshed.Rating.Equal(decimal.RequireFromString("4.5")), refreshed.Rating.String())

	empty, err := svc.Ratings(ctx, other.UserID)
	require.NoError(t, err)
	require.Empty(t, empty.Ratings)
	require.True(t, empty.Average.IsZero())
}
