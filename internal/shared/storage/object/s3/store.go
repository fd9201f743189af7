package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"docparse-backend/internal/shared/storage/object"
)

const deleteBatchSize = 1000

// API is the subset of the S3 client used by Store.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Options configures an S3-backed store.
type Options struct {
	Region   string
	Bucket   string
	Prefix   string
	KMSKeyID string
	// CacheDir receives downloaded objects so OCR backends can read them from disk.
	CacheDir string
}

// Store implements object.Store using Amazon S3.
type Store struct {
	client   API
	bucket   string
	prefix   string
	kmsKeyID string
	cacheDir string
}

// New loads the default AWS config and creates an S3-backed object store.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithClient(s3.NewFromConfig(cfg), opts), nil
}

// NewWithClient builds a store around an existing client.
func NewWithClient(client API, opts Options) *Store {
	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "docparse-cache")
	}
	return &Store{
		client:   client,
		bucket:   opts.Bucket,
		prefix:   normalizePrefix(opts.Prefix),
		kmsKeyID: strings.TrimSpace(opts.KMSKeyID),
		cacheDir: cacheDir,
	}
}

// Save uploads the reader contents under <prefix>/<id><ext>.
func (s *Store) Save(ctx context.Context, fileName string, r io.Reader) (object.Object, error) {
	if err := ctx.Err(); err != nil {
		return object.Object{}, err
	}

	id := object.NewID()
	name := object.StorageName(id, fileName)
	objectKey := applyPrefix(s.prefix, name)

	var sniff [512]byte
	n, readErr := io.ReadFull(r, sniff[:])
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		return object.Object{}, fmt.Errorf("read sniff: %w", readErr)
	}
	mimeType := http.DetectContentType(sniff[:n])

	counter := &countingReader{r: io.MultiReader(bytes.NewReader(sniff[:n]), r)}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        counter,
		ContentType: aws.String(mimeType),
	}
	if s.kmsKeyID != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(s.kmsKeyID)
	} else {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return object.Object{}, fmt.Errorf("s3 put object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	return object.Object{ID: id, Name: name, SizeBytes: counter.n, MimeType: mimeType}, nil
}

// Resolve finds the object whose key begins with <prefix>/<id>, downloading it
// into the cache directory on first use, and returns the cached path.
func (s *Store) Resolve(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !object.ValidID(id) {
		return "", object.ErrNotFound
	}

	if matches, _ := filepath.Glob(filepath.Join(s.cacheDir, id+"*")); len(matches) > 0 {
		for _, m := range matches {
			if !strings.HasSuffix(m, ".partial") {
				return m, nil
			}
		}
	}

	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(applyPrefix(s.prefix, id)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return "", fmt.Errorf("s3 list objects bucket=%s id=%s: %w", s.bucket, id, err)
	}
	if len(out.Contents) == 0 || out.Contents[0].Key == nil {
		return "", object.ErrNotFound
	}
	objectKey := aws.ToString(out.Contents[0].Key)
	return s.download(ctx, objectKey)
}

func (s *Store) download(ctx context.Context, objectKey string) (string, error) {
	got, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", object.ErrNotFound
		}
		return "", fmt.Errorf("s3 get object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	defer got.Body.Close()

	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir cache: %w", err)
	}
	finalPath := filepath.Join(s.cacheDir, path.Base(objectKey))
	tmp, err := os.CreateTemp(s.cacheDir, "."+path.Base(objectKey)+"-*.partial")
	if err != nil {
		return "", fmt.Errorf("create cache file: %w", err)
	}
	tmpPath := tmp.Name()
	_, copyErr := io.Copy(tmp, got.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write cache file: %w", errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename cache file: %w", err)
	}
	return finalPath, nil
}

// Sweep deletes objects under the prefix last modified before the cutoff
// and drops their cached copies.
func (s *Store) Sweep(ctx context.Context, before time.Time) (int, error) {
	listPrefix := ""
	if s.prefix != "" {
		listPrefix = s.prefix + "/"
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(listPrefix),
	})

	var stale []s3types.ObjectIdentifier
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("s3 list objects bucket=%s: %w", s.bucket, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || obj.LastModified == nil || !obj.LastModified.Before(before) {
				continue
			}
			// Only flat <id><ext> entries belong to this store.
			if strings.Contains(strings.TrimPrefix(key, listPrefix), "/") {
				continue
			}
			stale = append(stale, s3types.ObjectIdentifier{Key: aws.String(key)})
		}
	}

	removed := 0
	for start := 0; start < len(stale); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(stale))
		batch := stale[start:end]
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return removed, fmt.Errorf("s3 delete objects bucket=%s: %w", s.bucket, err)
		}
		failed := 0
		if out != nil {
			failed = len(out.Errors)
		}
		removed += len(batch) - failed
		for _, id := range batch {
			_ = os.Remove(filepath.Join(s.cacheDir, path.Base(aws.ToString(id.Key))))
		}
	}
	return removed, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func applyPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimLeft(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}

var _ object.Store = (*Store)(nil)
