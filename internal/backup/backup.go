// Package backup snapshots the household registry database, optionally
// encrypting the snapshot and shipping it to S3-compatible storage.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"
)

// s3Client is the subset of the S3 API used here.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds S3-compatible storage settings. Upload is enabled when
// bucket and both keys are set.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Result describes a finished backup.
type Result struct {
	Path      string `json:"path"`
	Key       string `json:"key,omitempty"`
	SizeBytes int64  `json:"size_bytes"`
	Encrypted bool   `json:"encrypted"`
}

type Manager struct {
	db     *sql.DB
	client s3Client
	bucket string
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(db *sql.DB, cfg S3Config, logger *slog.Logger) *Manager {
	m := &Manager{
		db:     db,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
		now:    time.Now,
	}
	if cfg.Enabled() {
		m.client = newS3Client(cfg)
	}
	return m
}

// Snapshot writes a consistent copy of the open database to dst, which must
// not exist.
func (m *Manager) Snapshot(ctx context.Context, dst string) error {
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dst, err)
	}
	return nil
}

// Run snapshots the database into dir, encrypts it when passphrase is set,
// and uploads it when S3 is configured.
func (m *Manager) Run(ctx context.Context, dir, passphrase string) (Result, error) {
	timestamp := m.now().UTC().Format("2006-01-02T150405Z")
	name := fmt.Sprintf("govgrant-%s.db", timestamp)
	path := filepath.Join(dir, name)

	if err := m.Snapshot(ctx, path); err != nil {
		return Result{}, err
	}

	res := Result{Path: path}
	if passphrase != "" {
		encPath := path + ".enc"
		if err := EncryptFile(path, encPath, passphrase); err != nil {
			return Result{}, fmt.Errorf("encrypt: %w", err)
		}
		os.Remove(path)
		res.Path = encPath
		res.Encrypted = true
	}

	stat, err := os.Stat(res.Path)
	if err != nil {
		return Result{}, fmt.Errorf("stat snapshot: %w", err)
	}
	res.SizeBytes = stat.Size()

	if m.client != nil {
		res.Key = m.prefix + filepath.Base(res.Path)
		if err := m.upload(ctx, res.Path, res.Key, res.SizeBytes); err != nil {
			return Result{}, err
		}
	}

	m.logger.InfoContext(ctx, "backup complete",
		"path", res.Path,
		"key", res.Key,
		"size_bytes", res.SizeBytes,
		"encrypted", res.Encrypted,
	)
	return res, nil
}

func (m *Manager) upload(ctx context.Context, path, key string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("upload to s3: %w", err)
	}
	return nil
}

// Fetch downloads the object at key into dst.
func (m *Manager) Fetch(ctx context.Context, key, dst string) error {
	if m.client == nil {
		return errors.New("backup storage not configured")
	}

	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, result.Body); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return out.Close()
}

// Restore replaces the database at dbPath with the snapshot at src,
// decrypting first when passphrase is set. The snapshot must pass SQLite's
// integrity check. Nothing may hold dbPath open.
func Restore(src, dbPath, passphrase string) error {
	plain := src
	if passphrase != "" {
		plain = dbPath + ".restore"
		if err := DecryptFile(src, plain, passphrase); err != nil {
			return err
		}
		defer os.Remove(plain)
	}

	if err := checkIntegrity(plain); err != nil {
		return err
	}
	if err := copyFile(plain, dbPath); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	os.Remove(dbPath + "-wal")
	os.Remove(dbPath + "-shm")
	return nil
}

func checkIntegrity(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
