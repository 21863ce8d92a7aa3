package storage

import (
	"io"
	"time"
)

// FileObject is a stored asset opened for reading.
type FileObject struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	LastModified  time.Time
}

// Provider abstracts the asset backend (S3-compatible or local disk).
type Provider interface {
	List(bucket, prefix string) ([]string, error)
	Get(bucket, key string) (*FileObject, error)
	Put(bucket, key string, body io.ReadSeeker, contentType, cacheControl string) error
	Delete(bucket, key string) error
}
