// Package queue carries post-merge ingestion tasks over Kafka. The producer
// runs inside the upload coordinator's merge transaction boundary; the
// consumer feeds the ingestion worker pool under one consumer group so each
// task is processed by exactly one worker at a time.
package queue

import "encoding/json"

// ProcessTask is the message enqueued after a successful merge.
type ProcessTask struct {
	// FileMD5 is the fingerprint of the merged object.
	FileMD5 string `json:"fileMd5"`

	// FilePath locates the merged object: a local path or an HTTP(S) URL
	// (typically a pre-signed download link).
	FilePath string `json:"filePath"`

	// FileName is the original file name.
	FileName string `json:"fileName"`

	// UserID is the owner's login name.
	UserID string `json:"userId"`

	// OrgTag is the scope tag the document was stored under.
	OrgTag string `json:"orgTag"`

	// IsPublic marks universally readable documents.
	IsPublic bool `json:"isPublic"`
}

// Marshal encodes the task for the wire.
func (t *ProcessTask) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// UnmarshalTask decodes a task from the wire.
func UnmarshalTask(data []byte) (*ProcessTask, error) {
	var t ProcessTask
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
