// Package storage archives finished pipeline run reports on local disk or
// in S3.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/kpi-processor/internal/config"
	"github.com/ignite/kpi-processor/internal/service/kpi"
)

// Archive types.
const (
	TypeNone  = "none"
	TypeLocal = "local"
	TypeS3    = "s3"
)

const reportCategory = "kpi-runs"

var (
	ErrReportNotFound = errors.New("run report not found")
	ErrInvalidRunID   = errors.New("invalid run id")
)

// Archive implements kpi.ReportArchive. The "none" archive accepts and
// drops every report.
type Archive struct {
	kind      string
	localPath string
	s3        S3API
	bucket    string

	mu sync.Mutex
}

// New builds the archive selected by cfg.ReportType.
func New(ctx context.Context, cfg config.StorageConfig) (*Archive, error) {
	switch cfg.ReportType {
	case "", TypeNone:
		return &Archive{kind: TypeNone}, nil
	case TypeLocal:
		return NewLocalArchive(cfg.LocalPath)
	case TypeS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("storage.s3_bucket is required for the s3 report archive")
		}
		awsCfg, err := LoadAWSConfig(ctx, AWSOptions{
			Region:          cfg.AWSRegion,
			Profile:         cfg.GetAWSProfile(),
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing S3 archive: %w", err)
		}
		return NewS3Archive(s3.NewFromConfig(awsCfg), cfg.S3Bucket), nil
	default:
		return nil, fmt.Errorf("unknown report archive type %q", cfg.ReportType)
	}
}

func NewLocalArchive(path string) (*Archive, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &Archive{kind: TypeLocal, localPath: path}, nil
}

func NewS3Archive(client S3API, bucket string) *Archive {
	return &Archive{kind: TypeS3, s3: client, bucket: bucket}
}

// Kind reports the archive type.
func (a *Archive) Kind() string { return a.kind }

func (a *Archive) Save(ctx context.Context, r *kpi.RunReport) error {
	if err := validRunID(r.RunID); err != nil {
		return err
	}
	switch a.kind {
	case TypeLocal:
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.saveToFile(reportCategory, r.RunID, r)
	case TypeS3:
		return putJSON(ctx, a.s3, a.bucket, s3Key(r.RunID), r)
	}
	return nil
}

// Load returns the archived report for runID.
func (a *Archive) Load(ctx context.Context, runID string) (*kpi.RunReport, error) {
	if err := validRunID(runID); err != nil {
		return nil, err
	}
	var r kpi.RunReport
	switch a.kind {
	case TypeLocal:
		a.mu.Lock()
		defer a.mu.Unlock()
		if err := a.loadFromFile(reportCategory, runID, &r); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, ErrReportNotFound
			}
			return nil, fmt.Errorf("loading run report: %w", err)
		}
	case TypeS3:
		if err := getJSON(ctx, a.s3, a.bucket, s3Key(runID), &r); err != nil {
			return nil, err
		}
	default:
		return nil, ErrReportNotFound
	}
	return &r, nil
}

func s3Key(runID string) string {
	return reportCategory + "/" + runID + ".json"
}

func validRunID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return ErrInvalidRunID
	}
	return nil
}

// saveToFile saves data to a JSON file
func (a *Archive) saveToFile(category, key string, data interface{}) error {
	dir := filepath.Join(a.localPath, category)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path := filepath.Join(dir, filepath.Base(key)+".json")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// loadFromFile loads data from a JSON file
func (a *Archive) loadFromFile(category, key string, data interface{}) error {
	path := filepath.Join(a.localPath, category, filepath.Base(key)+".json")

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(data)
}
