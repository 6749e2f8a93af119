package tests

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"testing"
	"time"

	"scriberr/internal/model"
	"scriberr/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// MockJobProcessor for testing
type MockJobProcessor struct {
	mock.Mock
	processDelay time.Duration
}

func (m *MockJobProcessor) ProcessJob(ctx context.Context, jobID string) error {
	return m.ProcessJobWithProcess(ctx, jobID, func(*exec.Cmd) {})
}

func (m *MockJobProcessor) ProcessJobWithProcess(ctx context.Context, jobID string, registerProcess func(*exec.Cmd)) error {
	args := m.Called(ctx, jobID)

	if registerProcess != nil {
		registerProcess(&exec.Cmd{})
	}

	if m.processDelay > 0 {
		select {
		case <-time.After(m.processDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return args.Error(0)
}

type QueueTestSuite struct {
	suite.Suite
	helper *TestHelper
}

func (suite *QueueTestSuite) SetupSuite() {
	suite.helper = NewTestHelper(suite.T(), "queue_test.db")
}

func (suite *QueueTestSuite) TearDownSuite() {
	suite.helper.Cleanup()
}

func (suite *QueueTestSuite) SetupTest() {
	suite.helper.ResetDB(suite.T())
}

// Test queue creation
func (suite *QueueTestSuite) TestNewTaskQueue() {
	mockProcessor := &MockJobProcessor{}

	tq := queue.NewTaskQueue(2, mockProcessor)

	assert.NotNil(suite.T(), tq)

	stats := tq.GetQueueStats()
	assert.Equal(suite.T(), 2, stats["current_workers"])
	assert.Equal(suite.T(), 0, stats["queue_size"])
	assert.Equal(suite.T(), 200, stats["queue_capacity"])
}

// Test enqueuing jobs
func (suite *QueueTestSuite) TestEnqueueJob() {
	mockProcessor := &MockJobProcessor{}
	tq := queue.NewTaskQueue(1, mockProcessor)

	err := tq.EnqueueJob("test-job-1")
	assert.NoError(suite.T(), err)

	stats := tq.GetQueueStats()
	assert.Equal(suite.T(), 1, stats["queue_size"])
}

// Test job processing
func (suite *QueueTestSuite) TestJobProcessing() {
	job := suite.helper.CreateTestTranscriptionJob(suite.T(), "Test Job Processing")

	mockProcessor := &MockJobProcessor{}
	mockProcessor.On("ProcessJobWithProcess", mock.Anything, job.ID).Return(nil)

	tq := queue.NewTaskQueue(1, mockProcessor)

	tq.Start()
	defer tq.Stop()

	err := tq.EnqueueJob(job.ID)
	assert.NoError(suite.T(), err)

	time.Sleep(100 * time.Millisecond)

	mockProcessor.AssertCalled(suite.T(), "ProcessJobWithProcess", mock.Anything, job.ID, mock.Anything)

	updatedJob, err := tq.GetJobStatus(job.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), model.JobDone, updatedJob.State)
}

// Test job processing failure
func (suite *QueueTestSuite) TestJobProcessingFailure() {
	mockProcessor := &MockJobProcessor{}
	mockProcessor.On("ProcessJobWithProcess", mock.Anything, mock.Anything).Return(assert.AnError)

	job := suite.helper.CreateTestTranscriptionJob(suite.T(), "Test Job Failure")

	tq := queue.NewTaskQueue(1, mockProcessor)

	tq.Start()
	defer tq.Stop()

	err := tq.EnqueueJob(job.ID)
	assert.NoError(suite.T(), err)

	time.Sleep(100 * time.Millisecond)

	mockProcessor.AssertCalled(suite.T(), "ProcessJobWithProcess", mock.Anything, job.ID, mock.Anything)

	updatedJob, err := tq.GetJobStatus(job.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), model.JobFailed, updatedJob.State)
	assert.NotNil(suite.T(), updatedJob.ErrorMessage)
}

// Test job cancellation
func (suite *QueueTestSuite) TestJobCancellation() {
	mockProcessor := &MockJobProcessor{}
	mockProcessor.processDelay = 500 * time.Millisecond
	mockProcessor.On("ProcessJobWithProcess", mock.Anything, mock.Anything).Return(context.Canceled)

	job := suite.helper.CreateTestTranscriptionJob(suite.T(), "Test Job Cancellation")

	tq := queue.NewTaskQueue(1, mockProcessor)

	tq.Start()
	defer tq.Stop()

	err := tq.EnqueueJob(job.ID)
	assert.NoError(suite.T(), err)

	time.Sleep(50 * time.Millisecond)

	assert.True(suite.T(), tq.IsJobRunning(job.ID))

	err = tq.KillJob(job.ID)
	assert.NoError(suite.T(), err)

	assert.Eventually(suite.T(), func() bool {
		return !tq.IsJobRunning(job.ID)
	}, 2*time.Second, 100*time.Millisecond, "Job should stop running after cancellation")

	assert.Eventually(suite.T(), func() bool {
		updatedJob, err := tq.GetJobStatus(job.ID)
		return err == nil && updatedJob.State == model.JobFailed
	}, 2*time.Second, 100*time.Millisecond, "Job status should update to failed")
}

// Test killing non-running job
func (suite *QueueTestSuite) TestKillNonRunningJob() {
	mockProcessor := &MockJobProcessor{}
	tq := queue.NewTaskQueue(1, mockProcessor)

	err := tq.KillJob("non-existent-job")
	assert.Error(suite.T(), err)
	assert.Contains(suite.T(), err.Error(), "not currently running")
}

// Test queue stats
func (suite *QueueTestSuite) TestGetQueueStats() {
	mockProcessor := &MockJobProcessor{}
	tq := queue.NewTaskQueue(3, mockProcessor)

	suite.helper.CreateTestTranscriptionJob(suite.T(), "Pending Job")

	processingJob := suite.helper.CreateTestTranscriptionJob(suite.T(), "Processing Job")
	processingJob.State = model.JobStarted
	suite.helper.GetDB().Save(processingJob)

	completedJob := suite.helper.CreateTestTranscriptionJob(suite.T(), "Completed Job")
	completedJob.State = model.JobDone
	suite.helper.GetDB().Save(completedJob)

	failedJob := suite.helper.CreateTestTranscriptionJob(suite.T(), "Failed Job")
	failedJob.State = model.JobFailed
	suite.helper.GetDB().Save(failedJob)

	stats := tq.GetQueueStats()

	assert.Equal(suite.T(), 3, stats["current_workers"])
	assert.Equal(suite.T(), 0, stats["queue_size"])
	assert.Equal(suite.T(), 200, stats["queue_capacity"])

	assert.Contains(suite.T(), stats, "pending_jobs")
	assert.Contains(suite.T(), stats, "processing_jobs")
	assert.Contains(suite.T(), stats, "completed_jobs")
	assert.Contains(suite.T(), stats, "failed_jobs")
}

// Test multiple workers
func (suite *QueueTestSuite) TestMultipleWorkers() {
	mockProcessor := &MockJobProcessor{}
	mockProcessor.processDelay = 100 * time.Millisecond
	mockProcessor.On("ProcessJobWithProcess", mock.Anything, mock.Anything).Return(nil)

	jobs := make([]*model.TranscriptionJob, 5)
	for i := 0; i < 5; i++ {
		jobs[i] = suite.helper.CreateTestTranscriptionJob(suite.T(), fmt.Sprintf("Concurrent Job %d", i))
	}

	tq := queue.NewTaskQueue(3, mockProcessor)

	tq.Start()
	defer tq.Stop()

	for _, job := range jobs {
		err := tq.EnqueueJob(job.ID)
		assert.NoError(suite.T(), err)
	}

	time.Sleep(300 * time.Millisecond)

	for _, job := range jobs {
		mockProcessor.AssertCalled(suite.T(), "ProcessJobWithProcess", mock.Anything, job.ID, mock.Anything)
	}
}

// Test queue shutdown
func (suite *QueueTestSuite) TestQueueShutdown() {
	mockProcessor := &MockJobProcessor{}
	mockProcessor.On("ProcessJobWithProcess", mock.Anything, mock.Anything).Return(nil)

	tq := queue.NewTaskQueue(2, mockProcessor)

	tq.Start()

	job := suite.helper.CreateTestTranscriptionJob(suite.T(), "Shutdown Test Job")
	err := tq.EnqueueJob(job.ID)
	assert.NoError(suite.T(), err)

	tq.Stop()

	err = tq.EnqueueJob("after-shutdown-job")
	assert.Error(suite.T(), err)
	assert.Contains(suite.T(), err.Error(), "shutting down")
}

// Test queue overflow
func (suite *QueueTestSuite) TestQueueOverflow() {
	mockProcessor := &MockJobProcessor{}
	mockProcessor.processDelay = 5 * time.Second
	mockProcessor.On("ProcessJobWithProcess", mock.Anything, mock.Anything).Return(nil)

	tq := queue.NewTaskQueue(1, mockProcessor)

	for i := 0; i < 200; i++ {
		err := tq.EnqueueJob(fmt.Sprintf("job-%d", i))
		assert.NoError(suite.T(), err)
	}

	err := tq.EnqueueJob("overflow-job")
	if assert.Error(suite.T(), err, "Expected error for queue overflow") {
		assert.Contains(suite.T(), err.Error(), "queue is full")
	}
}

// Test job status retrieval
func (suite *QueueTestSuite) TestGetJobStatus() {
	mockProcessor := &MockJobProcessor{}
	tq := queue.NewTaskQueue(1, mockProcessor)

	job := suite.helper.CreateTestTranscriptionJob(suite.T(), "Status Test Job")

	retrievedJob, err := tq.GetJobStatus(job.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), job.ID, retrievedJob.ID)
	assert.Equal(suite.T(), model.JobPending, retrievedJob.State)

	_, err = tq.GetJobStatus("non-existent-job")
	assert.Error(suite.T(), err)
}

// Test job running check
func (suite *QueueTestSuite) TestIsJobRunning() {
	mockProcessor := &MockJobProcessor{}
	mockProcessor.processDelay = 200 * time.Millisecond
	mockProcessor.On("ProcessJobWithProcess", mock.Anything, mock.Anything).Return(nil)

	job := suite.helper.CreateTestTranscriptionJob(suite.T(), "Running Check Job")

	tq := queue.NewTaskQueue(1, mockProcessor)
	tq.Start()
	defer tq.Stop()

	assert.False(suite.T(), tq.IsJobRunning(job.ID))

	err := tq.EnqueueJob(job.ID)
	assert.NoError(suite.T(), err)

	time.Sleep(50 * time.Millisecond)

	assert.True(suite.T(), tq.IsJobRunning(job.ID))

	assert.Eventually(suite.T(), func() bool {
		return !tq.IsJobRunning(job.ID)
	}, 2*time.Second, 100*time.Millisecond, "Job should stop running after completion")
}

// Test concurrent access safety
func (suite *QueueTestSuite) TestConcurrentAccess() {
	mockProcessor := &MockJobProcessor{}
	mockProcessor.On("ProcessJobWithProcess", mock.Anything, mock.Anything).Return(nil)

	tq := queue.NewTaskQueue(5, mockProcessor)
	tq.Start()
	defer tq.Stop()

	var wg sync.WaitGroup
	numGoroutines := 10
	jobsPerGoroutine := 5

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()
			for j := 0; j < jobsPerGoroutine; j++ {
				jobID := fmt.Sprintf("concurrent-job-%d-%d", goroutineID, j)
				err := tq.EnqueueJob(jobID)
				if err != nil && !assert.Contains(suite.T(), err.Error(), "queue is full") {
					assert.NoError(suite.T(), err)
				}
			}
		}(i)
	}

	wg.Wait()

	time.Sleep(500 * time.Millisecond)

	stats := tq.GetQueueStats()
	assert.NotNil(suite.T(), stats)
}

func TestQueueTestSuite(t *testing.T) {
	suite.Run(t, new(QueueTestSuite))
}
