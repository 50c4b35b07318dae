package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"listing-service/internal/correlation"
	"listing-service/internal/domain"
	"listing-service/internal/provider"
)

// MockWorkerStorer is a mock type for the store.WorkerStorer interface
type MockWorkerStorer struct {
	mock.Mock
}

func (m *MockWorkerStorer) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	args := m.Called(ctx, jobID)
	var job *domain.Job
	if args.Get(0) != nil {
		job = args.Get(0).(*domain.Job)
	}
	return job, args.Error(1)
}

func (m *MockWorkerStorer) ClaimJob(ctx context.Context, jobID string) (bool, error) {
	args := m.Called(ctx, jobID)
	return args.Bool(0), args.Error(1)
}

func (m *MockWorkerStorer) SetJobTotal(ctx context.Context, jobID string, total int) error {
	return m.Called(ctx, jobID, total).Error(0)
}

func (m *MockWorkerStorer) UpdateJobProgress(ctx context.Context, jobID string, processed, approved, rejected int) error {
	return m.Called(ctx, jobID, processed, approved, rejected).Error(0)
}

func (m *MockWorkerStorer) CompleteJob(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *MockWorkerStorer) FailJob(ctx context.Context, jobID, message string) error {
	return m.Called(ctx, jobID, message).Error(0)
}

func (m *MockWorkerStorer) SaveResult(ctx context.Context, r *domain.CorrelationResult) (bool, error) {
	args := m.Called(ctx, r)
	return args.Bool(0), args.Error(1)
}

func (m *MockWorkerStorer) CountStuckJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

type MockProductSource struct {
	mock.Mock
}

func (m *MockProductSource) Product(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	var p *domain.Product
	if args.Get(0) != nil {
		p = args.Get(0).(*domain.Product)
	}
	return p, args.Error(1)
}

func (m *MockProductSource) Related(ctx context.Context, id string) ([]string, error) {
	args := m.Called(ctx, id)
	var ids []string
	if args.Get(0) != nil {
		ids = args.Get(0).([]string)
	}
	return ids, args.Error(1)
}

func newTestWorker(maxCandidates int) (*Worker, *MockWorkerStorer, *MockProductSource) {
	logger, _ := test.NewNullLogger()
	st := new(MockWorkerStorer)
	products := new(MockProductSource)
	return NewWorker(st, products, correlation.NewScorer(0.35), maxCandidates, logger), st, products
}

func TestWorker_Handle_ScoresAndCompletes(t *testing.T) {
	w, st, products := newTestWorker(10)
	job := pendingJob(testJobID)

	st.On("ClaimJob", mock.Anything, testJobID).Return(true, nil)
	st.On("GetJob", mock.Anything, testJobID).Return(job, nil)
	products.On("Product", mock.Anything, "B000TEST01").
		Return(&domain.Product{ID: "B000TEST01", Title: "Acme Wireless Earbuds", Brand: "Acme"}, nil)
	products.On("Related", mock.Anything, "B000TEST01").
		Return([]string{"B000TEST02", "B000TEST01", "b000test02", "B000TEST03", "B000GONE"}, nil)
	products.On("Product", mock.Anything, "B000TEST02").
		Return(&domain.Product{ID: "B000TEST02", Title: "Acme Wireless Earbuds Pro", Brand: "Acme", ImageURLs: []string{"https://img/2.jpg"}}, nil)
	products.On("Product", mock.Anything, "B000TEST03").
		Return(&domain.Product{ID: "B000TEST03", Title: "Zenith Wireless Earbuds", Brand: "Zenith"}, nil)
	products.On("Product", mock.Anything, "B000GONE").Return(nil, provider.ErrProductNotFound)

	st.On("SetJobTotal", mock.Anything, testJobID, 3).Return(nil)
	st.On("SaveResult", mock.Anything, mock.MatchedBy(func(r *domain.CorrelationResult) bool {
		return r.CandidateKey == "B000TEST02" && r.UserID == "user-1" && r.SearchKey == "B000TEST01" && len(r.Images) == 1
	})).Return(true, nil)
	st.On("UpdateJobProgress", mock.Anything, testJobID, 1, 1, 0).Return(nil)
	st.On("UpdateJobProgress", mock.Anything, testJobID, 2, 1, 1).Return(nil)
	st.On("UpdateJobProgress", mock.Anything, testJobID, 3, 1, 2).Return(nil)
	st.On("CompleteJob", mock.Anything, testJobID).Return(nil)

	require.NoError(t, w.Handle(context.Background(), testJobID))
	st.AssertExpectations(t)
	products.AssertExpectations(t)
	st.AssertNotCalled(t, "FailJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestWorker_Handle_SkipsUnclaimableJob(t *testing.T) {
	w, st, products := newTestWorker(10)
	st.On("ClaimJob", mock.Anything, testJobID).Return(false, nil)

	require.NoError(t, w.Handle(context.Background(), testJobID))
	st.AssertNotCalled(t, "GetJob", mock.Anything, mock.Anything)
	products.AssertNotCalled(t, "Product", mock.Anything, mock.Anything)
}

func TestWorker_Handle_ProviderFailureFailsJob(t *testing.T) {
	w, st, products := newTestWorker(10)

	st.On("ClaimJob", mock.Anything, testJobID).Return(true, nil)
	st.On("GetJob", mock.Anything, testJobID).Return(pendingJob(testJobID), nil)
	products.On("Product", mock.Anything, "B000TEST01").Return(nil, errors.New("provider unavailable"))
	st.On("FailJob", mock.Anything, testJobID, "fetch source product: provider unavailable").Return(nil)

	err := w.Handle(context.Background(), testJobID)
	assert.Error(t, err)
	st.AssertExpectations(t)
	st.AssertNotCalled(t, "CompleteJob", mock.Anything, mock.Anything)
}

func TestWorker_Handle_ShutdownFailsClaimedJob(t *testing.T) {
	w, st, products := newTestWorker(10)
	ctx, cancel := context.WithCancel(context.Background())

	st.On("ClaimJob", mock.Anything, testJobID).Return(true, nil)
	st.On("GetJob", mock.Anything, testJobID).Return(pendingJob(testJobID), nil)
	products.On("Product", mock.Anything, "B000TEST01").Run(func(mock.Arguments) { cancel() }).Return(nil, context.Canceled)
	st.On("FailJob", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }), testJobID,
		"fetch source product: context canceled").Return(nil)

	err := w.Handle(ctx, testJobID)
	assert.ErrorIs(t, err, context.Canceled)
	st.AssertExpectations(t)
}

func TestWorker_Handle_InterruptedClaimLeavesJobPending(t *testing.T) {
	w, st, _ := newTestWorker(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st.On("ClaimJob", mock.Anything, testJobID).Return(false, context.Canceled)

	err := w.Handle(ctx, testJobID)
	assert.ErrorIs(t, err, context.Canceled)
	st.AssertNotCalled(t, "FailJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestWorker_CandidatesCapped(t *testing.T) {
	w, _, _ := newTestWorker(2)
	got := w.candidates("B000TEST01", []string{" B1 ", "b000test01", "B2", "B1", "B3", ""})
	assert.Equal(t, []string{"B1", "B2"}, got)
}
