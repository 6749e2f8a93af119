package tests

import (
	"os"
	"testing"

	"scriberr/internal/database"
	"scriberr/internal/model"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// TestHelper wraps a throwaway sqlite database used by one test suite.
type TestHelper struct {
	DB     *gorm.DB
	dbPath string
}

// NewTestHelper initializes a fresh sqlite database at dbPath.
func NewTestHelper(t *testing.T, dbPath string) *TestHelper {
	os.Remove(dbPath)
	require.NoError(t, database.Initialize(dbPath))
	return &TestHelper{DB: database.DB, dbPath: dbPath}
}

// ResetDB truncates all tables between tests.
func (h *TestHelper) ResetDB(t *testing.T) {
	require.NoError(t, h.DB.Exec("DELETE FROM transcription_jobs").Error)
	require.NoError(t, h.DB.Exec("DELETE FROM cached_transcriptions").Error)
	require.NoError(t, h.DB.Exec("DELETE FROM final_results").Error)
}

// Cleanup closes the database and removes its file.
func (h *TestHelper) Cleanup() {
	database.Close()
	os.Remove(h.dbPath)
	os.Remove(h.dbPath + "-shm")
	os.Remove(h.dbPath + "-wal")
}

// GetDB returns the underlying gorm handle.
func (h *TestHelper) GetDB() *gorm.DB {
	return h.DB
}

// CreateTestTranscriptionJob inserts a pending job with a throwaway audio path.
func (h *TestHelper) CreateTestTranscriptionJob(t *testing.T, label string) *model.TranscriptionJob {
	job := &model.TranscriptionJob{
		State:     model.JobPending,
		FileHash:  "hash-" + label,
		AudioPath: "/tmp/" + label + ".wav",
	}
	require.NoError(t, job.SetConfig(model.DefaultTranscriptionConfig()))
	require.NoError(t, h.DB.Create(job).Error)
	return job
}
