package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestNewFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore("  "); err == nil {
		t.Fatal("NewFileStore() accepted a blank path")
	}
}

func TestWriteAndReadFile(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}

	key, err := store.Write(context.Background(), "abc123/images/item.png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if key != "abc123/images/item.png" {
		t.Fatalf("Write() key = %q", key)
	}

	data, err := store.ReadFile(key)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if !bytes.Equal(data, []byte("png-bytes")) {
		t.Fatalf("ReadFile() = %q", data)
	}
}

func TestWriteRejectsTraversal(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	for _, key := range []string{"../escape.png", "a/../../escape.png", "", "."} {
		if _, err := store.Write(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("Write(%q) accepted a traversal key", key)
		}
	}
}

func TestWriteHonorsContext(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Write(ctx, "a.png", []byte("x")); err == nil {
		t.Fatal("Write() ignored a cancelled context")
	}
}

func TestAppendJSONL(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := store.AppendJSONL("sess/requests.jsonl", map[string]any{"n": n}); err != nil {
				t.Errorf("AppendJSONL() error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	f, err := os.Open(filepath.Join(dir, "sess", "requests.jsonl"))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var record map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("line %d is not valid json: %q", lines, scanner.Text())
		}
		lines++
	}
	if lines != 20 {
		t.Fatalf("log has %d lines, want 20", lines)
	}
}
