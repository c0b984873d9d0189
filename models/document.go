// models/document.go
package models

import "time"

// RawDocument is an unparsed response body fetched from a remote endpoint.
// It is discarded once the owning collector has parsed it.
type RawDocument struct {
	SourceURL   string
	RetrievedAt time.Time
	ContentType string
	StatusCode  int
	Body        []byte
}

// StorageObject describes a blob written to object storage. Objects are
// written once; a new run produces a new key rather than an overwrite.
type StorageObject struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"` // hex sha256 of the uploaded bytes
	WrittenAt   time.Time `json:"written_at"`
}
