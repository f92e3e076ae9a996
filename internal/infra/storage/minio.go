package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	domain "github.com/bryanwahyu/verdict/internal/domain/verdict"
)

// Options for the MinIO backed draft store.
type Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// TTL after which a pending draft is treated as gone. Zero keeps drafts
	// until they are saved.
	TTL time.Duration
}

// Store keeps pending drafts as one JSON object per user.
type Store struct {
	client     *minio.Client
	bucketName string
	ttl        time.Duration
	now        func() time.Time
}

// New buat koneksi MinIO
func New(ctx context.Context, opts Options) (*Store, error) {
	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "minio client")
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "check bucket")
	}
	if !exists {
		if err := cli.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, errors.Wrapf(err, "make bucket %s", opts.Bucket)
		}
	}

	return &Store{client: cli, bucketName: opts.Bucket, ttl: opts.TTL, now: time.Now}, nil
}

func (s *Store) Put(ctx context.Context, userID string, d domain.Draft) error {
	b, err := encodeDraft(d)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucketName, draftKey(userID), bytes.NewReader(b), int64(len(b)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return errors.Wrap(err, "put draft")
}

// Get returns nil when the user has no draft or it has expired.
func (s *Store) Get(ctx context.Context, userID string) (*domain.Draft, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, draftKey(userID), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "get draft")
	}
	defer obj.Close()

	b, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == minio.NoSuchKey {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read draft")
	}
	d, err := decodeDraft(b)
	if err != nil {
		return nil, err
	}
	if expired(d, s.ttl, s.now()) {
		return nil, s.Delete(ctx, userID)
	}
	return d, nil
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	err := s.client.RemoveObject(ctx, s.bucketName, draftKey(userID), minio.RemoveObjectOptions{})
	return errors.Wrap(err, "remove draft")
}

// Ping is used by the health check.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Errorf("bucket %s is missing", s.bucketName)
	}
	return nil
}

func draftKey(userID string) string {
	return "drafts/" + userID + ".json"
}

func encodeDraft(d domain.Draft) ([]byte, error) {
	b, err := json.Marshal(d)
	return b, errors.Wrap(err, "encode draft")
}

func decodeDraft(b []byte) (*domain.Draft, error) {
	var d domain.Draft
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, errors.Wrap(err, "decode draft")
	}
	return &d, nil
}

func expired(d *domain.Draft, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(d.SavedAt) > ttl
}
