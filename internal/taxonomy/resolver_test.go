package taxonomy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"listing-service/internal/domain"
)

// MockSuggestionSource is a mock type for the SuggestionSource interface
type MockSuggestionSource struct {
	mock.Mock
}

func (m *MockSuggestionSource) CategorySuggestions(ctx context.Context, query string) ([]domain.CategoryCandidate, error) {
	args := m.Called(ctx, query)
	var res []domain.CategoryCandidate
	if args.Get(0) != nil {
		res = args.Get(0).([]domain.CategoryCandidate)
	}
	return res, args.Error(1)
}

var fallback = domain.Category{ID: "88433", Name: "Everything Else > Other"}

func newResolver(source SuggestionSource) (*Resolver, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return NewResolver(source, fallback, logger), hook
}

func TestResolve_TopCandidateWins(t *testing.T) {
	source := new(MockSuggestionSource)
	source.On("CategorySuggestions", mock.Anything, "Acme Wireless Earbuds").Return([]domain.CategoryCandidate{
		{Category: domain.Category{ID: "112529", Name: "Headphones", Leaf: true}, Rank: 0},
		{Category: domain.Category{ID: "80077", Name: "Earbuds", Leaf: true}, Rank: 1},
	}, nil)

	r, _ := newResolver(source)
	res := r.Resolve(context.Background(), "  Acme   Wireless Earbuds ")

	assert.Equal(t, OutcomeMatched, res.Outcome)
	assert.Equal(t, "112529", res.Category.ID)
	assert.True(t, res.Category.Leaf)
	source.AssertExpectations(t)
}

func TestResolve_UpstreamErrorFallsBack(t *testing.T) {
	source := new(MockSuggestionSource)
	source.On("CategorySuggestions", mock.Anything, mock.Anything).Return(nil, errors.New("503"))

	r, hook := newResolver(source)
	res := r.Resolve(context.Background(), "Anything")

	assert.Equal(t, OutcomeFallbackUpstreamError, res.Outcome)
	assert.Equal(t, "88433", res.Category.ID)
	assert.True(t, res.Category.Leaf)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestResolve_NoCandidatesFallsBack(t *testing.T) {
	source := new(MockSuggestionSource)
	source.On("CategorySuggestions", mock.Anything, mock.Anything).Return([]domain.CategoryCandidate{}, nil)

	r, _ := newResolver(source)
	res := r.Resolve(context.Background(), "Obscure widget")

	assert.Equal(t, OutcomeFallbackNoCandidates, res.Outcome)
	assert.Equal(t, fallback.ID, res.Category.ID)
}

func TestResolve_NonLeafIsFlagged(t *testing.T) {
	source := new(MockSuggestionSource)
	source.On("CategorySuggestions", mock.Anything, mock.Anything).Return([]domain.CategoryCandidate{
		{Category: domain.Category{ID: "293", Name: "Electronics", Leaf: false}},
		{Category: domain.Category{ID: "112529", Name: "Headphones", Leaf: true}, Rank: 1},
	}, nil)

	r, hook := newResolver(source)
	res := r.Resolve(context.Background(), "Gadget")

	// No local re-ranking: the non-leaf top candidate is surfaced, not replaced.
	assert.Equal(t, OutcomeNonLeaf, res.Outcome)
	assert.Equal(t, "293", res.Category.ID)
	assert.False(t, res.Category.Leaf)
	assert.Equal(t, "293", hook.LastEntry().Data["category_id"])
}

func TestResolve_LongTitleIsTruncatedBeforeSending(t *testing.T) {
	words := make([]string, 0, 30)
	for len(strings.Join(words, " ")) < 150 {
		words = append(words, "earbuds")
	}
	title := strings.Join(words, " ")[:150]

	source := new(MockSuggestionSource)
	source.On("CategorySuggestions", mock.Anything, mock.MatchedBy(func(q string) bool {
		return len(q) <= MaxQueryLength && strings.HasSuffix(q, "earbuds")
	})).Return([]domain.CategoryCandidate{{Category: domain.Category{ID: "112529", Leaf: true}}}, nil)

	r, _ := newResolver(source)
	res := r.Resolve(context.Background(), title)
	assert.Equal(t, OutcomeMatched, res.Outcome)
	source.AssertExpectations(t)
}

func TestTruncateTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		limit int
		want  string
	}{
		{"short", "Acme Earbuds", 100, "Acme Earbuds"},
		{"collapses whitespace", " Acme \t Earbuds\n", 100, "Acme Earbuds"},
		{"cuts on word boundary", "alpha beta gamma", 12, "alpha beta"},
		{"boundary right after limit", "alpha beta gamma", 10, "alpha beta"},
		{"single long token is hard cut", strings.Repeat("x", 120), 100, strings.Repeat("x", 100)},
		{"multibyte runes", "äöü äöü äöü", 9, "äöü äöü"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := TruncateTitle(tc.title, tc.limit)
			assert.Equal(t, tc.want, got)
			assert.LessOrEqual(t, len([]rune(got)), tc.limit)
		})
	}
}
