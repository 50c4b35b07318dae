package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"listing-service/internal/domain"
	"listing-service/internal/store"
)

const testJobID = "3f2b8f7e-8c1a-4a6e-9d2f-0b1c2d3e4f50"

// MockJobStorer is a mock type for the store.JobStorer interface
type MockJobStorer struct {
	mock.Mock
}

func (m *MockJobStorer) FindActiveJob(ctx context.Context, userID, searchKey string) (*domain.Job, error) {
	args := m.Called(ctx, userID, searchKey)
	var job *domain.Job
	if args.Get(0) != nil {
		job = args.Get(0).(*domain.Job)
	}
	return job, args.Error(1)
}

func (m *MockJobStorer) CreateJob(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	args := m.Called(ctx, job)
	var created *domain.Job
	if args.Get(0) != nil {
		created = args.Get(0).(*domain.Job)
	}
	return created, args.Error(1)
}

func (m *MockJobStorer) GetJobForUser(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	args := m.Called(ctx, jobID, userID)
	var job *domain.Job
	if args.Get(0) != nil {
		job = args.Get(0).(*domain.Job)
	}
	return job, args.Error(1)
}

func (m *MockJobStorer) ListJobs(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	args := m.Called(ctx, userID, limit)
	var jobs []domain.Job
	if args.Get(0) != nil {
		jobs = args.Get(0).([]domain.Job)
	}
	return jobs, args.Error(1)
}

func (m *MockJobStorer) FailJob(ctx context.Context, jobID, message string) error {
	args := m.Called(ctx, jobID, message)
	return args.Error(0)
}

func (m *MockJobStorer) ListResults(ctx context.Context, userID, searchKey string) ([]domain.CorrelationResult, error) {
	args := m.Called(ctx, userID, searchKey)
	var res []domain.CorrelationResult
	if args.Get(0) != nil {
		res = args.Get(0).([]domain.CorrelationResult)
	}
	return res, args.Error(1)
}

func (m *MockJobStorer) SetDecision(ctx context.Context, userID string, resultID int64, decision domain.Decision, reason *string) (*domain.CorrelationResult, error) {
	args := m.Called(ctx, userID, resultID, decision, reason)
	var res *domain.CorrelationResult
	if args.Get(0) != nil {
		res = args.Get(0).(*domain.CorrelationResult)
	}
	return res, args.Error(1)
}

type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func newTestManager() (*Manager, *MockJobStorer, *MockEnqueuer) {
	logger, _ := test.NewNullLogger()
	st := new(MockJobStorer)
	q := new(MockEnqueuer)
	return NewManager(st, q, logger), st, q
}

func pendingJob(id string) *domain.Job {
	return &domain.Job{ID: id, UserID: "user-1", SearchKey: "B000TEST01", Status: domain.JobPending}
}

func TestStart_CreatesAndEnqueues(t *testing.T) {
	m, st, q := newTestManager()

	st.On("FindActiveJob", mock.Anything, "user-1", "B000TEST01").Return(nil, store.ErrJobNotFound)
	st.On("CreateJob", mock.Anything, mock.MatchedBy(func(j *domain.Job) bool {
		return j.UserID == "user-1" && j.SearchKey == "B000TEST01" && len(j.ID) == 36
	})).Return(pendingJob(testJobID), nil)
	q.On("Enqueue", mock.Anything, testJobID).Return(nil)

	res, err := m.Start(context.Background(), " user-1 ", "B000TEST01")
	require.NoError(t, err)
	assert.False(t, res.AlreadyRunning)
	assert.Equal(t, testJobID, res.Job.ID)
	st.AssertExpectations(t)
	q.AssertExpectations(t)
}

func TestStart_AlreadyRunningCreatesNothing(t *testing.T) {
	m, st, q := newTestManager()
	active := pendingJob(testJobID)
	active.Status = domain.JobProcessing

	st.On("FindActiveJob", mock.Anything, "user-1", "B000TEST01").Return(active, nil)

	res, err := m.Start(context.Background(), "user-1", "B000TEST01")
	require.NoError(t, err)
	assert.True(t, res.AlreadyRunning)
	assert.Equal(t, active, res.Job)
	st.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
	q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestStart_ConcurrentInsertReturnsWinner(t *testing.T) {
	m, st, q := newTestManager()
	winner := pendingJob(testJobID)

	st.On("FindActiveJob", mock.Anything, "user-1", "B000TEST01").Return(nil, store.ErrJobNotFound).Once()
	st.On("CreateJob", mock.Anything, mock.Anything).Return(nil, store.ErrActiveJobExists)
	st.On("FindActiveJob", mock.Anything, "user-1", "B000TEST01").Return(winner, nil).Once()

	res, err := m.Start(context.Background(), "user-1", "B000TEST01")
	require.NoError(t, err)
	assert.True(t, res.AlreadyRunning)
	assert.Equal(t, testJobID, res.Job.ID)
	q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestStart_TriggerFailureFailsJob(t *testing.T) {
	m, st, q := newTestManager()
	queueDown := errors.New("dial tcp: connection refused")

	st.On("FindActiveJob", mock.Anything, mock.Anything, mock.Anything).Return(nil, store.ErrJobNotFound)
	st.On("CreateJob", mock.Anything, mock.Anything).Return(pendingJob(testJobID), nil)
	q.On("Enqueue", mock.Anything, testJobID).Return(queueDown)
	st.On("FailJob", mock.Anything, testJobID, "trigger failed: dial tcp: connection refused").Return(nil)

	res, err := m.Start(context.Background(), "user-1", "B000TEST01")
	assert.Nil(t, res)
	var trigErr *TriggerError
	require.ErrorAs(t, err, &trigErr)
	assert.Equal(t, testJobID, trigErr.JobID)
	assert.ErrorIs(t, err, queueDown)
	st.AssertExpectations(t)
}

func TestStart_InvalidInput(t *testing.T) {
	m, st, _ := newTestManager()

	_, err := m.Start(context.Background(), "", "B000TEST01")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = m.Start(context.Background(), "user-1", "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	st.AssertNotCalled(t, "FindActiveJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestStart_StoreError(t *testing.T) {
	m, st, _ := newTestManager()
	st.On("FindActiveJob", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	_, err := m.Start(context.Background(), "user-1", "B000TEST01")
	assert.Error(t, err)
	st.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
}

func TestStatus(t *testing.T) {
	t.Run("complete job includes results", func(t *testing.T) {
		m, st, _ := newTestManager()
		job := pendingJob(testJobID)
		job.Status = domain.JobComplete
		results := []domain.CorrelationResult{{ID: 1, CandidateKey: "B000TEST02", Score: 0.8}}

		st.On("GetJobForUser", mock.Anything, testJobID, "user-1").Return(job, nil)
		st.On("ListResults", mock.Anything, "user-1", "B000TEST01").Return(results, nil)

		view, err := m.Status(context.Background(), testJobID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, results, view.Results)
	})

	t.Run("processing job has no results", func(t *testing.T) {
		m, st, _ := newTestManager()
		job := pendingJob(testJobID)
		job.Status = domain.JobProcessing
		st.On("GetJobForUser", mock.Anything, testJobID, "user-1").Return(job, nil)

		view, err := m.Status(context.Background(), testJobID, "user-1")
		require.NoError(t, err)
		assert.Nil(t, view.Results)
		st.AssertNotCalled(t, "ListResults", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("other user's job is not found", func(t *testing.T) {
		m, st, _ := newTestManager()
		st.On("GetJobForUser", mock.Anything, testJobID, "user-2").Return(nil, store.ErrJobNotFound)

		_, err := m.Status(context.Background(), testJobID, "user-2")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("malformed id is not found", func(t *testing.T) {
		m, st, _ := newTestManager()

		_, err := m.Status(context.Background(), "not-a-uuid", "user-1")
		assert.ErrorIs(t, err, ErrJobNotFound)
		st.AssertNotCalled(t, "GetJobForUser", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestList_Limits(t *testing.T) {
	testCases := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{"default", 0, DefaultListLimit},
		{"negative", -5, DefaultListLimit},
		{"within range", 50, 50},
		{"capped", 500, MaxListLimit},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, st, _ := newTestManager()
			st.On("ListJobs", mock.Anything, "user-1", tc.wantLimit).Return([]domain.Job{}, nil)

			_, err := m.List(context.Background(), "user-1", tc.limit)
			require.NoError(t, err)
			st.AssertExpectations(t)
		})
	}
}

func TestDecide(t *testing.T) {
	reason := "wrong colour"

	t.Run("declined keeps reason", func(t *testing.T) {
		m, st, _ := newTestManager()
		st.On("SetDecision", mock.Anything, "user-1", int64(7), domain.DecisionDeclined, &reason).
			Return(&domain.CorrelationResult{ID: 7}, nil)

		res, err := m.Decide(context.Background(), "user-1", 7, domain.DecisionDeclined, &reason)
		require.NoError(t, err)
		assert.Equal(t, int64(7), res.ID)
	})

	t.Run("accepted drops reason", func(t *testing.T) {
		m, st, _ := newTestManager()
		st.On("SetDecision", mock.Anything, "user-1", int64(7), domain.DecisionAccepted, (*string)(nil)).
			Return(&domain.CorrelationResult{ID: 7}, nil)

		_, err := m.Decide(context.Background(), "user-1", 7, domain.DecisionAccepted, &reason)
		require.NoError(t, err)
		st.AssertExpectations(t)
	})

	t.Run("unknown decision", func(t *testing.T) {
		m, _, _ := newTestManager()
		_, err := m.Decide(context.Background(), "user-1", 7, domain.Decision("maybe"), nil)
		assert.ErrorIs(t, err, ErrInvalidDecision)
	})

	t.Run("missing result", func(t *testing.T) {
		m, st, _ := newTestManager()
		st.On("SetDecision", mock.Anything, "user-1", int64(9), domain.DecisionAccepted, (*string)(nil)).
			Return(nil, store.ErrResultNotFound)

		_, err := m.Decide(context.Background(), "user-1", 9, domain.DecisionAccepted, nil)
		assert.ErrorIs(t, err, ErrResultNotFound)
	})
}
