package utils

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestDiskStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := OpenDiskStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to open DiskStore: %v", err)
	}

	testDiskStoreBasic(t, store)
	testDiskStoreBatch(t, store)
	testDiskStoreDelete(t, store)

	if err := store.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}

	testDiskStorePersistence(t, dbPath)
}

func testDiskStoreBasic(t *testing.T, store *DiskStore) {
	val := []byte("test-value")
	if err := store.Put("net/a", val); err != nil {
		t.Errorf("Put failed: %v", err)
	}
	val[0] = 'X'

	res, err := store.Get("net/a")
	if err != nil {
		t.Errorf("Get failed: %v", err)
	}
	if string(res) != "test-value" {
		t.Errorf("Get mismatch: got %q, want %q", res, "test-value")
	}

	missing, err := store.Get("net/missing")
	if err != nil || missing != nil {
		t.Errorf("Get(missing) = (%q, %v), want (nil, nil)", missing, err)
	}
}

func testDiskStoreBatch(t *testing.T, store *DiskStore) {
	batch := map[string][]byte{
		"net/b": []byte("bravo"),
		"net/c": []byte("charlie"),
		"net/a": []byte("alpha"),
	}
	if err := store.PutBatch(batch); err != nil {
		t.Errorf("PutBatch failed: %v", err)
	}

	res, err := store.Get("net/a")
	if err != nil || !bytes.Equal(res, batch["net/a"]) {
		t.Errorf("Get after batch = (%q, %v), want alpha", res, err)
	}

	var keys []string
	err = store.ForEach(func(k, v []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	if err != nil {
		t.Errorf("ForEach failed: %v", err)
	}
	want := []string{"net/a", "net/b", "net/c"}
	if len(keys) != len(want) {
		t.Fatalf("ForEach visited %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("ForEach key %d = %s, want %s", i, keys[i], want[i])
		}
	}
}

func testDiskStoreDelete(t *testing.T, store *DiskStore) {
	if err := store.Delete("net/c"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
	res, err := store.Get("net/c")
	if err != nil || res != nil {
		t.Errorf("Get after delete = (%q, %v), want (nil, nil)", res, err)
	}
}

func testDiskStorePersistence(t *testing.T, dbPath string) {
	store, err := OpenDiskStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen DiskStore: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			t.Logf("Error closing store: %v", err)
		}
	}()

	res, err := store.Get("net/b")
	if err != nil {
		t.Errorf("Get after reopen failed: %v", err)
	}
	if string(res) != "bravo" {
		t.Errorf("Persistence mismatch: got %q, want bravo", res)
	}
}
