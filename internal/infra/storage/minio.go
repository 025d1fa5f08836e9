package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bryanwahyu/st22-gateway/internal/application"
	"github.com/bryanwahyu/st22-gateway/internal/domain/ai"
	domain "github.com/bryanwahyu/st22-gateway/internal/domain/dumps"
)

const prefix = "analyses/"

// Store keeps one JSON object per dump id in a MinIO/S3 bucket.
// ListRecent reads every object, so it suits modest volumes.
type Store struct {
	client     *minio.Client
	bucketName string
	clock      application.Clock
}

// New connects to MinIO and makes sure the bucket exists
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool, clock application.Clock) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Store{client: cli, bucketName: bucket, clock: clock}, nil
}

func objectKey(id domain.RecordID) string {
	return prefix + url.PathEscape(string(id)) + ".json"
}

// Save overwrites the object of id
func (s *Store) Save(ctx context.Context, id domain.RecordID, payload domain.Payload, result ai.NormalizedResult) (*domain.AnalysisRecord, error) {
	if payload == nil {
		payload = domain.Payload{}
	}
	rec := &domain.AnalysisRecord{
		RecordID:       id,
		InputPayload:   payload,
		AnalysisResult: result,
		CreatedAt:      s.clock.Now().UTC(),
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, domain.StorageError("save "+string(id), err)
	}

	_, err = s.client.PutObject(ctx, s.bucketName, objectKey(id), bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return nil, domain.StorageError("save "+string(id), err)
	}

	// hand back what a Get would return
	var out domain.AnalysisRecord
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, domain.StorageError("save "+string(id), err)
	}
	return &out, nil
}

// Get returns nil when no object exists for id
func (s *Store) Get(ctx context.Context, id domain.RecordID) (*domain.AnalysisRecord, error) {
	rec, err := s.read(ctx, objectKey(id))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.StorageError("get "+string(id), err)
	}
	return rec, nil
}

// ListRecent loads all records under the prefix and keeps the newest limit
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = domain.DefaultListLimit
	}

	var all []*domain.AnalysisRecord
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, domain.StorageError("list recent", obj.Err)
		}
		if !strings.HasSuffix(obj.Key, ".json") {
			continue
		}
		rec, err := s.read(ctx, obj.Key)
		if isNotFound(err) {
			// deleted between list and read
			continue
		}
		if err != nil {
			return nil, domain.StorageError("list recent", err)
		}
		all = append(all, rec)
	}
	return newest(all, limit), nil
}

func (s *Store) read(ctx context.Context, key string) (*domain.AnalysisRecord, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, err
	}
	var rec domain.AnalysisRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &rec, nil
}

// Ping checks the bucket is reachable
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucketName)
	return err
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// newest sorts by created_at desc (id desc on ties) and truncates to limit.
func newest(recs []*domain.AnalysisRecord, limit int) []*domain.AnalysisRecord {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].RecordID > recs[j].RecordID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	if recs == nil {
		recs = []*domain.AnalysisRecord{}
	}
	return recs
}
