package model

import "time"

const (
	ArchiveStatusNoop    = "noop"
	ArchiveStatusSuccess = "success"
)

// ArchiveResult 描述一次归档批次的结果
type ArchiveResult struct {
	Status   string    `json:"status"`
	Message  string    `json:"message"`
	Count    int       `json:"count"`
	From     time.Time `json:"from,omitempty"`
	To       time.Time `json:"to,omitempty"`
	BlobPath string    `json:"blob_path,omitempty"`
	BlobRef  string    `json:"file,omitempty"`
	Policy   string    `json:"policy,omitempty"`
}
