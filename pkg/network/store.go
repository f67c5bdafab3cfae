package network

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sudorandom/lane-heat/pkg/utils"
)

const (
	storeKeyPrefix = "model/"
	metaKeyPrefix  = "meta/"
)

// Store keeps the last successfully ingested model per source URL.
type Store struct {
	disk *utils.DiskStore
}

type storedModel struct {
	SavedAt time.Time `json:"savedAt"`
	Model   *Model    `json:"model"`
}

// StoredEntry summarises one saved model without decoding it.
type StoredEntry struct {
	Source  string    `json:"source"`
	SavedAt time.Time `json:"savedAt"`
	Lanes   int       `json:"lanes"`
	Bytes   int       `json:"bytes"`
}

func OpenStore(path string) (*Store, error) {
	disk, err := utils.OpenDiskStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model store: %w", err)
	}
	return &Store{disk: disk}, nil
}

func (s *Store) Close() error {
	return s.disk.Close()
}

// Save writes the model and its summary in one batch.
func (s *Store) Save(sourceURL string, m *Model) error {
	now := time.Now().UTC()
	data, err := json.Marshal(storedModel{SavedAt: now, Model: m})
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	meta, err := json.Marshal(StoredEntry{Source: sourceURL, SavedAt: now, Lanes: len(m.Lanes), Bytes: len(data)})
	if err != nil {
		return fmt.Errorf("failed to encode model summary: %w", err)
	}
	err = s.disk.PutBatch(map[string][]byte{
		storeKeyPrefix + sourceURL: data,
		metaKeyPrefix + sourceURL:  meta,
	})
	if err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	log.Printf("[STORE] Saved model for %s (%d lanes, %d bytes)", sourceURL, len(m.Lanes), len(data))
	return nil
}

// Load returns the stored model for sourceURL, or nil when none was saved.
func (s *Store) Load(sourceURL string) (*Model, time.Time, error) {
	data, err := s.disk.Get(storeKeyPrefix + sourceURL)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read model: %w", err)
	}
	if data == nil {
		return nil, time.Time{}, nil
	}
	var sm storedModel
	if err := json.Unmarshal(data, &sm); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to decode stored model: %w", err)
	}
	return sm.Model, sm.SavedAt, nil
}

// Entries lists the summaries of every stored model in source order.
func (s *Store) Entries() ([]StoredEntry, error) {
	var out []StoredEntry
	err := s.disk.ForEach(func(k, v []byte) error {
		if !strings.HasPrefix(string(k), metaKeyPrefix) {
			return nil
		}
		var e StoredEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return fmt.Errorf("failed to decode summary %s: %w", k, err)
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// Delete removes the stored model for sourceURL. Deleting a missing model is
// not an error.
func (s *Store) Delete(sourceURL string) error {
	if err := s.disk.Delete(metaKeyPrefix + sourceURL); err != nil {
		return fmt.Errorf("failed to delete model summary: %w", err)
	}
	if err := s.disk.Delete(storeKeyPrefix + sourceURL); err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	log.Printf("[STORE] Deleted model for %s", sourceURL)
	return nil
}
