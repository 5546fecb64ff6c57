package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

// Reader implements domain.BlobReader on an S3-compatible backend. The
// dataset loader uses it to pull candle files referenced by s3:// keys.
type Reader struct {
	client *s3.Client
	bucket string
}

// NewReader creates a Reader that fetches from the client's bucket.
func NewReader(c *Client) *Reader {
	return &Reader{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

// Get downloads the object at key in full. Datasets and run archives are
// bounded in size, so buffering the whole body is fine. Returns
// domain.ErrNotFound when the object does not exist.
func (r *Reader) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: get %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", key, err)
	}
	return data, nil
}

// Exists checks whether an object exists at key via HeadObject.
func (r *Reader) Exists(ctx context.Context, key string) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3blob: exists %s: %w", key, err)
	}
	return true, nil
}

// isNotFound matches both the typed SDK errors and the generic 404 some
// S3-compatible providers return.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	// HeadObject returns NotFound rather than NoSuchKey.
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	type httpResponseError interface {
		HTTPStatusCode() int
	}
	var httpErr httpResponseError
	if errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == 404 {
		return true
	}
	return false
}

// Compile-time interface check.
var _ domain.BlobReader = (*Reader)(nil)
