package storage

import (
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/azzam1122112-dot/school-display/internal/config"
)

// Client serves school assets: logos and excellence photos. The snapshot
// builder only needs PublicURL; no handler in this service calls Put.
type Client struct {
	backend    Provider
	bucket     string
	publicBase string
}

func New(cfg *config.Config) *Client {
	var backend Provider

	if cfg.Storage.Provider == "local" {
		backend = NewLocalProvider(cfg.Storage.LocalPath)
	} else {
		s3Config := &aws.Config{
			Credentials:      credentials.NewStaticCredentials(cfg.Storage.KeyID, cfg.Storage.AppKey, ""),
			Endpoint:         aws.String(cfg.Storage.Endpoint),
			Region:           aws.String(cfg.Storage.Region),
			S3ForcePathStyle: aws.Bool(true),
		}
		sess := session.Must(session.NewSession(s3Config))
		backend = NewS3Provider(sess)
	}

	return &Client{
		backend:    backend,
		bucket:     cfg.Storage.BucketAssets,
		publicBase: strings.TrimRight(cfg.Storage.PublicBase, "/"),
	}
}

// PublicURL maps a storage key to the URL displays fetch it from. Keys that
// are already absolute URLs pass through (legacy rows store full URLs).
func (c *Client) PublicURL(key string) string {
	if key == "" {
		return ""
	}
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}
	return c.publicBase + "/" + strings.TrimLeft(key, "/")
}

func (c *Client) Get(key string) (*FileObject, error) {
	return c.backend.Get(c.bucket, key)
}

func (c *Client) Put(key string, body io.ReadSeeker, contentType string) error {
	// Assets are immutable once uploaded; let edges cache them for a day.
	return c.backend.Put(c.bucket, key, body, contentType, "public, max-age=86400")
}

func (c *Client) Delete(key string) error {
	return c.backend.Delete(c.bucket, key)
}

func (c *Client) List(prefix string) ([]string, error) {
	return c.backend.List(c.bucket, prefix)
}
