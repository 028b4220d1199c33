package services_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/legrandjeremy/maxence-rag/application/services"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeamMembership(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	teams := services.NewTeamService(store, nil)

	reds, err := teams.Create(ctx, entities.CreateTeamInput{Name: "Reds", CompanyID: "c1", ManagerID: "m1"}, "admin")
	require.NoError(t, err)
	blues, err := teams.Create(ctx, entities.CreateTeamInput{Name: "Blues", CompanyID: "c1"}, "admin")
	require.NoError(t, err)

	_, err = teams.AddMember(ctx, reds.ID, "u1", "m1")
	require.NoError(t, err)
	_, err = teams.AddMember(ctx, reds.ID, "u2", "m1")
	require.NoError(t, err)

	_, err = teams.AddMember(ctx, reds.ID, "u1", "m1")
	assert.True(t, apperrors.IsAlreadyExists(err), "same team twice")
	_, err = teams.AddMember(ctx, blues.ID, "u1", "m1")
	assert.True(t, apperrors.IsAlreadyExists(err), "second team")

	stats, err := teams.Stats(ctx, reds.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalMembers)

	membership, err := teams.GetUserMembership(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, reds.ID, membership.TeamID)

	require.NoError(t, teams.RemoveMember(ctx, reds.ID, "u2"))
	require.NoError(t, teams.RemoveMember(ctx, reds.ID, "u2"), "removing twice succeeds")
	_, err = teams.GetUserMembership(ctx, "u2")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTeamManagerIndex(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	teams := services.NewTeamService(store, nil)

	team, err := teams.Create(ctx, entities.CreateTeamInput{Name: "Reds", CompanyID: "c1", ManagerID: "m1"}, "admin")
	require.NoError(t, err)

	managed, err := teams.ListByManager(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, managed, 1)

	_, err = teams.Update(ctx, team.ID, entities.TeamUpdate{ManagerID: ptr("m2")})
	require.NoError(t, err)
	managed, err = teams.ListByManager(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, managed)
	managed, err = teams.ListByManager(ctx, "m2")
	require.NoError(t, err)
	assert.Len(t, managed, 1)

	updated, err := teams.Update(ctx, team.ID, entities.TeamUpdate{ManagerID: ptr("")})
	require.NoError(t, err)
	assert.Empty(t, updated.ManagerID)
	managed, err = teams.ListByManager(ctx, "m2")
	require.NoError(t, err)
	assert.Empty(t, managed)

	byCompany, err := teams.ListByCompany(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, byCompany, 1)
}

func TestTeamDeleteChunksMemberRows(t *testing.T) {
	store, client := newStore(t)
	ctx := context.Background()
	teams := services.NewTeamService(store, nil)

	team, err := teams.Create(ctx, entities.CreateTeamInput{Name: "Big", CompanyID: "c1"}, "admin")
	require.NoError(t, err)
	for i := 0; i < 56; i++ {
		_, err := teams.AddMember(ctx, team.ID, fmt.Sprintf("u%02d", i), "admin")
		require.NoError(t, err)
	}
	client.ResetCalls()

	require.NoError(t, teams.Delete(ctx, team.ID))
	assert.Equal(t, []int{25, 25, 7}, client.BatchWriteSizes())
	assert.Equal(t, 0, client.Len())

	_, err = teams.GetByID(ctx, team.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCompanyListForTeamManager(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	companies := services.NewCompanyService(store, nil)
	teams := services.NewTeamService(store, nil)

	active, err := companies.Create(ctx, entities.CreateCompanyInput{Name: "Active"}, "admin")
	require.NoError(t, err)
	dormant, err := companies.Create(ctx, entities.CreateCompanyInput{Name: "Dormant"}, "admin")
	require.NoError(t, err)
	_, err = companies.Update(ctx, dormant.ID, entities.CompanyUpdate{IsActive: ptr(false)})
	require.NoError(t, err)

	for _, companyID := range []string{active.ID, active.ID, dormant.ID, "ghost"} {
		_, err := teams.Create(ctx, entities.CreateTeamInput{Name: "t", CompanyID: companyID, ManagerID: "m1"}, "admin")
		require.NoError(t, err)
	}

	got, err := companies.ListForTeamManager(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)

	all, err := companies.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	activeOnly, err := companies.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, activeOnly, 1)
}
