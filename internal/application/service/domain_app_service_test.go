package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/psn/internal/application/dto"
	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/internal/domain/service/mocks"
	"github.com/turtacn/psn/pkg/constants"
	"github.com/turtacn/psn/pkg/errors"
)

func TestDomainAppService_CreateInheritsFromParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root := f.createDomain(t, consecutiveInput("study"))
	child := f.createDomain(t, &models.DomainInput{Name: ptr("site-a"), SuperDomainName: ptr("study")})

	require.NotNil(t, child.SuperDomainID)
	assert.Equal(t, root.ID, *child.SuperDomainID)
	assert.Equal(t, "P-", child.Prefix)
	assert.True(t, child.PrefixInherited)
	assert.Equal(t, constants.AlgorithmConsecutive, child.Algorithm)
	assert.True(t, child.AlgorithmInherited)
	assert.Equal(t, root.Salt, child.Salt)

	got, err := f.domains.GetDomain(ctx, "site-a")
	require.NoError(t, err)
	assert.Equal(t, child.ID, got.ID)

	children, err := f.domains.ListChildren(ctx, "study")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "site-a", children[0].Name)

	f.audit.AssertCalled(t, "LogEvent", mock.Anything, mock.MatchedBy(func(e models.AuditEvent) bool {
		return e.EventType == constants.EventTypeDomainCreated && e.Domain == "site-a"
	}))
}

func TestDomainAppService_CreateErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createDomain(t, consecutiveInput("study"))

	_, err := f.domains.CreateDomain(ctx, &models.DomainInput{})
	assert.True(t, errors.IsUnprocessable(err))

	_, err = f.domains.CreateDomain(ctx, &models.DomainInput{Name: ptr("orphan"), SuperDomainName: ptr("missing")})
	assert.True(t, errors.IsNotFound(err))

	_, err = f.domains.CreateDomain(ctx, consecutiveInput("study"))
	assert.True(t, errors.IsUnprocessable(err))

	_, err = f.domains.CreateDomain(ctx, &models.DomainInput{Name: ptr("bad name")})
	assert.True(t, errors.IsUnprocessable(err))
}

func TestDomainAppService_GetUsesConfigCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.createDomain(t, consecutiveInput("study"))

	cache := &mocks.MockDomainConfigCache{}
	cache.On("Get", mock.Anything, "study").Return(nil, nil).Once()
	cache.On("Set", mock.Anything, mock.Anything).Return(nil).Once()
	cache.On("Get", mock.Anything, "study").Return(d, nil).Once()

	svc := NewDomainAppService(f.domainRepo, f.recordRepo, f.tx, nil, f.planner, cache, nil, nil, noopLog())
	first, err := svc.GetDomain(ctx, "study")
	require.NoError(t, err)
	second, err := svc.GetDomain(ctx, "study")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	cache.AssertExpectations(t)
}

func TestDomainAppService_UpdateCascadesToInheritingDescendants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createDomain(t, consecutiveInput("study"))
	f.createDomain(t, &models.DomainInput{Name: ptr("site-a"), SuperDomainName: ptr("study")})
	f.createDomain(t, &models.DomainInput{Name: ptr("site-b"), SuperDomainName: ptr("study"), Prefix: ptr("B-")})
	f.createDomain(t, &models.DomainInput{Name: ptr("ward-b1"), SuperDomainName: ptr("site-b")})

	resp, err := f.domains.UpdateDomain(ctx, "study", &models.DomainInput{Prefix: ptr("Q-")}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"prefix"}, resp.Changed)
	assert.Equal(t, []string{"site-a"}, resp.Cascaded)

	siteA, err := f.domains.GetDomain(ctx, "site-a")
	require.NoError(t, err)
	assert.Equal(t, "Q-", siteA.Prefix)
	assert.True(t, siteA.PrefixInherited)

	wardB1, err := f.domains.GetDomain(ctx, "ward-b1")
	require.NoError(t, err)
	assert.Equal(t, "B-", wardB1.Prefix)
}

func TestDomainAppService_UpdateWithoutCascadeLeavesChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createDomain(t, consecutiveInput("study"))
	f.createDomain(t, &models.DomainInput{Name: ptr("site-a"), SuperDomainName: ptr("study")})

	resp, err := f.domains.UpdateDomain(ctx, "study", &models.DomainInput{Prefix: ptr("Q-")}, false)
	require.NoError(t, err)
	assert.Empty(t, resp.Cascaded)
	assert.False(t, resp.Domain.PrefixInherited)

	siteA, err := f.domains.GetDomain(ctx, "site-a")
	require.NoError(t, err)
	assert.Equal(t, "P-", siteA.Prefix)
}

func TestDomainAppService_CascadeReissuedValueReachesStaleChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createDomain(t, consecutiveInput("study"))
	f.createDomain(t, &models.DomainInput{Name: ptr("site-a"), SuperDomainName: ptr("study")})
	f.createDomain(t, &models.DomainInput{Name: ptr("ward-a1"), SuperDomainName: ptr("site-a")})

	_, err := f.domains.UpdateDomain(ctx, "study", &models.DomainInput{Prefix: ptr("Q-")}, false)
	require.NoError(t, err)

	resp, err := f.domains.UpdateDomain(ctx, "study", &models.DomainInput{Prefix: ptr("Q-")}, true)
	require.NoError(t, err)
	assert.Empty(t, resp.Changed)
	assert.Equal(t, []string{"site-a", "ward-a1"}, resp.Cascaded)

	for _, name := range []string{"site-a", "ward-a1"} {
		d, err := f.domains.GetDomain(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, "Q-", d.Prefix, name)
		assert.True(t, d.PrefixInherited, name)
	}

	resp, err = f.domains.UpdateDomain(ctx, "study", &models.DomainInput{Prefix: ptr("Q-")}, true)
	require.NoError(t, err)
	assert.Empty(t, resp.Cascaded)
}

func TestDomainAppService_UpdateGatedByRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createDomain(t, consecutiveInput("study"))
	_, err := f.pseudonyms.Allocate(ctx, "study", &dto.AllocateRequest{Identifier: "alice", IDType: "MRN"})
	require.NoError(t, err)

	_, err = f.domains.UpdateDomain(ctx, "study", &models.DomainInput{Prefix: ptr("Q-")}, false)
	assert.True(t, errors.IsUnprocessable(err))

	resp, err := f.domains.UpdateDomain(ctx, "study", &models.DomainInput{Description: ptr("trial 7")}, false)
	require.NoError(t, err)
	assert.Equal(t, "trial 7", resp.Domain.Description)

	_, err = f.domains.UpdateDomain(ctx, "study", &models.DomainInput{}, false)
	assert.True(t, errors.IsUnprocessable(err))
}

func TestDomainAppService_CascadeGatedByDescendantRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createDomain(t, consecutiveInput("study"))
	f.createDomain(t, &models.DomainInput{Name: ptr("site-a"), SuperDomainName: ptr("study")})
	_, err := f.pseudonyms.Allocate(ctx, "site-a", &dto.AllocateRequest{Identifier: "alice", IDType: "MRN"})
	require.NoError(t, err)

	_, err = f.domains.UpdateDomain(ctx, "study", &models.DomainInput{Prefix: ptr("Q-")}, true)
	assert.True(t, errors.IsUnprocessable(err))

	study, err := f.domains.GetDomain(ctx, "study")
	require.NoError(t, err)
	assert.Equal(t, "P-", study.Prefix, "a rejected cascade rolls back the root too")

	until := time.Now().UTC().AddDate(5, 0, 0).Truncate(time.Second)
	resp, err := f.domains.UpdateDomain(ctx, "study", &models.DomainInput{ValidTo: &until}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"site-a"}, resp.Cascaded)
}

func TestDomainAppService_RenameInvalidatesAccessCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createDomain(t, consecutiveInput("study"))
	f.createDomain(t, &models.DomainInput{Name: ptr("site-a"), SuperDomainName: ptr("study")})

	resp, err := f.domains.UpdateDomain(ctx, "site-a", &models.DomainInput{Name: ptr("site-x")}, false)
	require.NoError(t, err)
	assert.Equal(t, "site-x", resp.Domain.Name)

	f.access.AssertCalled(t, "InvalidateMatching", mock.Anything, mock.MatchedBy(func(match func(string) bool) bool {
		return match("study/site-a") && !match("study")
	}))

	path, err := f.domains.DomainPath(ctx, "site-x")
	require.NoError(t, err)
	assert.Equal(t, "study/site-x", path)

	_, err = f.domains.GetDomain(ctx, "site-a")
	assert.True(t, errors.IsNotFound(err))
}

func TestDomainAppService_DeleteRequiresCascadeForNonEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createDomain(t, consecutiveInput("study"))
	f.createDomain(t, &models.DomainInput{Name: ptr("site-a"), SuperDomainName: ptr("study")})
	f.createDomain(t, &models.DomainInput{Name: ptr("ward-1"), SuperDomainName: ptr("site-a")})
	_, err := f.pseudonyms.Allocate(ctx, "ward-1", &dto.AllocateRequest{Identifier: "alice", IDType: "MRN"})
	require.NoError(t, err)
	_, err = f.pseudonyms.Allocate(ctx, "study", &dto.AllocateRequest{Identifier: "bob", IDType: "MRN"})
	require.NoError(t, err)

	_, err = f.domains.DeleteDomain(ctx, "study", false)
	assert.True(t, errors.IsUnprocessable(err))
	_, err = f.domains.DeleteDomain(ctx, "ward-1", false)
	assert.True(t, errors.IsUnprocessable(err))

	resp, err := f.domains.DeleteDomain(ctx, "study", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"ward-1", "site-a", "study"}, resp.Domains)
	assert.Equal(t, int64(2), resp.RecordsDeleted)

	for _, name := range resp.Domains {
		_, err := f.domains.GetDomain(ctx, name)
		assert.True(t, errors.IsNotFound(err), name)
	}
	f.access.AssertCalled(t, "InvalidateMatching", mock.Anything, mock.Anything)
}

func TestDomainAppService_DeleteEmptyLeaf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createDomain(t, consecutiveInput("study"))

	resp, err := f.domains.DeleteDomain(ctx, "study", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"study"}, resp.Domains)

	_, err = f.domains.DeleteDomain(ctx, "study", false)
	assert.True(t, errors.IsNotFound(err))
}

func TestDomainAppService_FillingRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createDomain(t, &models.DomainInput{
		Name:            ptr("tiny"),
		Algorithm:       ptr(constants.AlgorithmRandomNum),
		PseudonymLength: ptr(2),
		AddCheckDigit:   ptr(false),
	})
	for _, id := range []string{"a", "b", "c"} {
		_, err := f.pseudonyms.Allocate(ctx, "tiny", &dto.AllocateRequest{Identifier: id, IDType: "MRN"})
		require.NoError(t, err)
	}

	count, err := f.domains.CountRecords(ctx, "tiny")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	stats, err := f.domains.FillingRate(ctx, "tiny")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.RecordCount)
	assert.Equal(t, float64(100), stats.Capacity)
	assert.InDelta(t, 0.03, stats.FillingRate, 1e-9)
}

func TestDomainAppService_ListDomains(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"b", "a", "c"} {
		f.createDomain(t, consecutiveInput(name))
	}

	resp, err := f.domains.ListDomains(ctx, &dto.ListDomainsRequest{Limit: 2})
	require.NoError(t, err)
	require.Len(t, resp.Domains, 2)
	assert.Equal(t, "a", resp.Domains[0].Name)
	assert.Equal(t, 2, resp.Pagination.Count)

	_, err = f.domains.ListDomains(ctx, &dto.ListDomainsRequest{Limit: -1})
	assert.Error(t, err)
}
