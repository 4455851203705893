package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

// maxReportBytes caps how much of one archived object is read back.
const maxReportBytes = 8 << 20

// Reader implements domain.BlobReader over the settlement archive. Every key
// it serves must sit under its prefix; anything else reads as missing.
type Reader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewReader creates a Reader over the settlement keys of the client's bucket.
func NewReader(c *Client) *Reader {
	return &Reader{
		client: c.S3(),
		bucket: c.Bucket(),
		prefix: settlementPrefix,
	}
}

// Get returns the object body, which the caller must close. Keys outside the
// archive and missing objects yield domain.ErrNotFound; objects larger than
// maxReportBytes are refused.
func (r *Reader) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	if !inScope(r.prefix, path) {
		return nil, fmt.Errorf("s3blob: get %s: outside %s: %w", path, r.prefix, domain.ErrNotFound)
	}
	output, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: get %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: get %s: %w", path, err)
	}
	if size := aws.ToInt64(output.ContentLength); size > maxReportBytes {
		output.Body.Close()
		return nil, fmt.Errorf("s3blob: get %s: %d bytes exceeds %d", path, size, maxReportBytes)
	}
	return capBody(output.Body, maxReportBytes), nil
}

// List returns the archived objects under prefix, oldest first, following
// pagination. Folder placeholder keys are skipped.
func (r *Reader) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	if !inScope(r.prefix, prefix) {
		return nil, fmt.Errorf("s3blob: list %s: outside %s: %w", prefix, r.prefix, domain.ErrNotFound)
	}

	var infos []domain.BlobInfo
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			info := domain.BlobInfo{
				Path:        key,
				Size:        aws.ToInt64(obj.Size),
				ContentType: jsonContentType,
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}

	sortOldestFirst(infos)
	return infos, nil
}

func inScope(prefix, key string) bool {
	return strings.HasPrefix(key, prefix) && !strings.Contains(key, "..")
}

// sortOldestFirst orders blobs by upload time, then key.
func sortOldestFirst(infos []domain.BlobInfo) {
	sort.SliceStable(infos, func(i, j int) bool {
		if !infos[i].LastModified.Equal(infos[j].LastModified) {
			return infos[i].LastModified.Before(infos[j].LastModified)
		}
		return infos[i].Path < infos[j].Path
	})
}

type cappedBody struct {
	io.Reader
	io.Closer
}

// capBody stops reading after n bytes, for providers that omit the length.
func capBody(rc io.ReadCloser, n int64) io.ReadCloser {
	return cappedBody{Reader: io.LimitReader(rc, n), Closer: rc}
}

// isNotFound matches NoSuchKey and bare 404 responses from S3-compatible
// providers.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var httpErr interface{ HTTPStatusCode() int }
	return errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == 404
}

var _ domain.BlobReader = (*Reader)(nil)
