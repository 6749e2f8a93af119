package store

import (
	"encoding/json"

	"gorm.io/gorm/clause"

	"scriberr/internal/model"
)

func marshalConfig(cfg model.TranscriptionConfig) (string, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// upsertByFileHash builds the ON CONFLICT(file_hash) DO UPDATE clause used
// by PushTranscription; concurrent upserts for the same file_hash are
// idempotent-compatible, last writer wins on the words field (§5).
func upsertByFileHash() []clause.Expression {
	return []clause.Expression{
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"words_json"}),
		},
	}
}
