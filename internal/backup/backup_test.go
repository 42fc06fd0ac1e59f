package backup

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/govgrant/internal/database"
	"github.com/dukerupert/govgrant/internal/store"
)

// mockS3Client keeps objects in memory.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSeededManager(t *testing.T, client s3Client) *Manager {
	t.Helper()
	db, err := database.Open(database.MemoryPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	refs := store.NewReferenceStore(db)
	ht, err := refs.GetByName(context.Background(), "housing_type", "Landed")
	if err != nil || ht == nil {
		t.Fatalf("housing type: %v", err)
	}
	if _, err := store.NewHouseholdStore(db).Create(context.Background(), ht.ID); err != nil {
		t.Fatalf("create household: %v", err)
	}

	m := NewManager(db, S3Config{Bucket: "grants", Prefix: "nightly/"}, quiet())
	m.client = client
	m.now = func() time.Time { return time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC) }
	return m
}

func countHouseholds(t *testing.T, path string) int {
	t.Helper()
	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("open restored db: %v", err)
	}
	defer db.Close()
	households, err := store.NewHouseholdStore(db).List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return len(households)
}

func TestS3ConfigEnabled(t *testing.T) {
	if (S3Config{Bucket: "b"}).Enabled() {
		t.Error("bucket alone should not enable upload")
	}
	if !(S3Config{Bucket: "b", AccessKey: "k", SecretKey: "s"}).Enabled() {
		t.Error("bucket and keys should enable upload")
	}
	if NewManager(nil, S3Config{}, quiet()).client != nil {
		t.Error("disabled config should leave client nil")
	}
}

func TestRunPlainWithoutUpload(t *testing.T) {
	m := newSeededManager(t, nil)
	dir := t.TempDir()

	res, err := m.Run(context.Background(), dir, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Encrypted || res.Key != "" {
		t.Errorf("result = %+v", res)
	}
	if want := filepath.Join(dir, "govgrant-2025-06-01T030000Z.db"); res.Path != want {
		t.Errorf("path = %q, want %q", res.Path, want)
	}
	if got := countHouseholds(t, res.Path); got != 1 {
		t.Errorf("households in snapshot = %d, want 1", got)
	}
}

func TestRunEncryptedUploadAndRestore(t *testing.T) {
	mock := newMockS3()
	m := newSeededManager(t, mock)
	dir := t.TempDir()

	res, err := m.Run(context.Background(), dir, "hunter2")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Encrypted {
		t.Error("expected encrypted snapshot")
	}
	if res.Key != "nightly/govgrant-2025-06-01T030000Z.db.enc" {
		t.Errorf("key = %q", res.Key)
	}
	if _, ok := mock.objects[res.Key]; !ok {
		t.Fatal("snapshot not uploaded")
	}
	if _, err := os.Stat(strings.TrimSuffix(res.Path, ".enc")); !os.IsNotExist(err) {
		t.Error("plaintext snapshot should be removed after encryption")
	}

	fetched := filepath.Join(dir, "fetched.enc")
	if err := m.Fetch(context.Background(), res.Key, fetched); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	target := filepath.Join(dir, "restored.db")
	if err := Restore(fetched, target, "wrong"); err == nil {
		t.Error("restore with wrong passphrase should fail")
	}
	if err := Restore(fetched, target, "hunter2"); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := countHouseholds(t, target); got != 1 {
		t.Errorf("households after restore = %d, want 1", got)
	}
}

func TestRestoreRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "garbage.db")
	os.WriteFile(src, []byte(strings.Repeat("not a database ", 100)), 0o600)

	if err := Restore(src, filepath.Join(dir, "target.db"), ""); err == nil {
		t.Error("expected integrity failure")
	}
}

func TestFetchNotConfigured(t *testing.T) {
	m := NewManager(nil, S3Config{}, quiet())
	if err := m.Fetch(context.Background(), "k", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Error("expected error without storage")
	}
}
