package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"listing-service/internal/domain"
	"listing-service/internal/jobs"
	"listing-service/internal/learning"
	"listing-service/internal/listing"
	"listing-service/internal/provider"
)

// MockLister is a mock implementation of Lister
type MockLister struct {
	mock.Mock
}

func (m *MockLister) List(ctx context.Context, req listing.Request) (*listing.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*listing.Result), args.Error(1)
}

// MockJobManager is a mock implementation of JobManager
type MockJobManager struct {
	mock.Mock
}

func (m *MockJobManager) Start(ctx context.Context, userID, searchKey string) (*jobs.StartResult, error) {
	args := m.Called(ctx, userID, searchKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.StartResult), args.Error(1)
}

func (m *MockJobManager) Status(ctx context.Context, jobID, userID string) (*jobs.StatusView, error) {
	args := m.Called(ctx, jobID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.StatusView), args.Error(1)
}

func (m *MockJobManager) List(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	args := m.Called(ctx, userID, limit)
	var list []domain.Job
	if arg0 := args.Get(0); arg0 != nil {
		list = arg0.([]domain.Job)
	}
	return list, args.Error(1)
}

func (m *MockJobManager) Decide(ctx context.Context, userID string, resultID int64, decision domain.Decision, reason *string) (*domain.CorrelationResult, error) {
	args := m.Called(ctx, userID, resultID, decision, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CorrelationResult), args.Error(1)
}

type MockReviewer struct {
	mock.Mock
}

func (m *MockReviewer) ReviewPending(ctx context.Context, limit int) (learning.Summary, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).(learning.Summary), args.Error(1)
}

// Helper for setting up tests with a chi router and handler
func setupTestChiServer(t *testing.T, l Lister, jm JobManager, rv Reviewer) *httptest.Server {
	t.Helper()
	logger, _ := test.NewNullLogger()
	handler := NewHTTPHandler(l, jm, rv, logger)
	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

// Helper function to get a pointer (useful for optional fields in domain structs)
func PtrTo[T any](v T) *T {
	return &v
}

func postListing(t *testing.T, server *httptest.Server, input ListingCreateInput) *http.Response {
	t.Helper()
	reqBody, _ := json.Marshal(input)
	res, err := http.Post(server.URL+"/api/v1/listings", "application/json", bytes.NewBuffer(reqBody))
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decodeError(t *testing.T, res *http.Response) ErrorResponse {
	t.Helper()
	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&errResp))
	return errResp
}

func TestHTTPHandler_CreateListing_Success(t *testing.T) {
	mockLister := new(MockLister)
	server := setupTestChiServer(t, mockLister, nil, nil)

	category := domain.Category{ID: "112529", Name: "Headphones", Leaf: true}
	mockLister.On("List", mock.Anything, listing.Request{ProductID: "B000TEST01", Price: 19.99, Condition: "NEW", Publish: true}).
		Return(&listing.Result{
			SKU:            "LS-B000TEST01",
			OfferID:        "9001",
			ListingID:      "110000000001",
			Category:       category,
			MissingAspects: []string{"Type"},
		}, nil).Once()

	res := postListing(t, server, ListingCreateInput{ProductID: " B000TEST01 ", Price: 19.99, Condition: "NEW", Publish: true})
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var body ListingResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "LS-B000TEST01", body.SKU)
	assert.Equal(t, "110000000001", body.ListingID)
	assert.Equal(t, category, body.Category)
	assert.Equal(t, []string{"Type"}, body.MissingAspects)
	mockLister.AssertExpectations(t)
}

func TestHTTPHandler_CreateListing_InvalidPayload_Validation(t *testing.T) {
	mockLister := new(MockLister)
	server := setupTestChiServer(t, mockLister, nil, nil)

	res := postListing(t, server, ListingCreateInput{ProductID: "B000TEST01", Price: 0, Condition: "NEW"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, decodeError(t, res).Error, "Validation failed")
	mockLister.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestHTTPHandler_CreateListing_ErrorMapping(t *testing.T) {
	missing := &listing.StepError{
		Step: listing.StepPublish,
		SKU:  "LS-B000TEST01",
		Err:  &listing.MissingAspectsError{Names: []string{"Type", "Ear Piece Design"}},
	}

	testCases := []struct {
		name       string
		err        error
		wantStatus int
		check      func(t *testing.T, resp ErrorResponse)
	}{
		{
			name:       "invalid condition for category",
			err:        listing.ErrInvalidConditionForCategory,
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, resp ErrorResponse) {
				assert.Equal(t, listing.ErrInvalidConditionForCategory.Error(), resp.Error)
			},
		},
		{
			name:       "missing aspects",
			err:        missing,
			wantStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, resp ErrorResponse) {
				assert.Equal(t, []string{"Type", "Ear Piece Design"}, resp.MissingAspects)
			},
		},
		{
			name:       "product not found",
			err:        &listing.StepError{Step: listing.StepProvider, Err: provider.ErrProductNotFound},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "upstream step failure",
			err:        &listing.StepError{Step: listing.StepOffer, SKU: "LS-B000TEST01", Err: errors.New("marketplace api error: status 500")},
			wantStatus: http.StatusBadGateway,
			check: func(t *testing.T, resp ErrorResponse) {
				assert.Equal(t, listing.StepOffer, resp.Step)
				assert.Equal(t, "marketplace api error: status 500", resp.Error)
			},
		},
		{
			name:       "unexpected error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockLister := new(MockLister)
			server := setupTestChiServer(t, mockLister, nil, nil)
			mockLister.On("List", mock.Anything, mock.Anything).Return(nil, tc.err).Once()

			res := postListing(t, server, ListingCreateInput{ProductID: "B000TEST01", Price: 5, Condition: "USED"})
			assert.Equal(t, tc.wantStatus, res.StatusCode)
			resp := decodeError(t, res)
			if tc.check != nil {
				tc.check(t, resp)
			}
		})
	}
}

func TestHTTPHandler_ReviewMisses(t *testing.T) {
	mockReviewer := new(MockReviewer)
	server := setupTestChiServer(t, nil, nil, mockReviewer)

	mockReviewer.On("ReviewPending", mock.Anything, defaultReviewLimit).Return(learning.Summary{Processed: 2, ReviewNeeded: 1}, nil).Once()
	mockReviewer.On("ReviewPending", mock.Anything, maxReviewLimit).Return(learning.Summary{}, nil).Once()

	res, err := http.Post(server.URL+"/api/v1/learning/review", "application/json", nil)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var sum learning.Summary
	require.NoError(t, json.NewDecoder(res.Body).Decode(&sum))
	assert.Equal(t, learning.Summary{Processed: 2, ReviewNeeded: 1}, sum)

	res2, err := http.Post(server.URL+"/api/v1/learning/review?limit=1000", "application/json", nil)
	require.NoError(t, err)
	defer res2.Body.Close()
	assert.Equal(t, http.StatusOK, res2.StatusCode)
	mockReviewer.AssertExpectations(t)
}
