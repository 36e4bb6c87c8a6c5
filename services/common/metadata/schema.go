// services/common/metadata/schema.go
package metadata

func schema(driver string) []string {
	timestamp := "TIMESTAMPTZ"
	id := "UUID"
	if driver == DriverSQLite {
		timestamp = "TEXT"
		id = "TEXT"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS audio_files (
			id ` + id + ` PRIMARY KEY,
			device_id TEXT NOT NULL,
			recorded_at ` + timestamp + ` NOT NULL,
			file_path TEXT NOT NULL,
			local_date TEXT NOT NULL,
			time_block TEXT NOT NULL,
			file_size_bytes BIGINT,
			transcriber_status TEXT NOT NULL DEFAULT 'pending',
			behavior_status TEXT NOT NULL DEFAULT 'pending',
			emotion_status TEXT NOT NULL DEFAULT 'pending',
			created_at ` + timestamp + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audio_files_device_id ON audio_files(device_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audio_files_local_date ON audio_files(local_date)`,
		`CREATE INDEX IF NOT EXISTS idx_audio_files_transcriber_status ON audio_files(transcriber_status)`,
		`CREATE INDEX IF NOT EXISTS idx_audio_files_behavior_status ON audio_files(behavior_status)`,
		`CREATE INDEX IF NOT EXISTS idx_audio_files_emotion_status ON audio_files(emotion_status)`,
	}
}
