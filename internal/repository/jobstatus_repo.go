package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
)

// ScopedJobStatusStore keeps the batch refresh summary as a single JSON entry
// under a fixed GLOBAL key, overwritten by each run.
type ScopedJobStatusStore struct {
	entries ConfigStore
}

var _ JobStatusStore = (*ScopedJobStatusStore)(nil)

func NewScopedJobStatusStore(entries ConfigStore) *ScopedJobStatusStore {
	return &ScopedJobStatusStore{entries: entries}
}

func (s *ScopedJobStatusStore) Write(ctx context.Context, status domain.RefreshJobStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode job status: %w", err)
	}
	_, err = s.entries.Set(ctx, domain.ConfigEntry{
		Scope:     domain.ScopeGlobal,
		Key:       JobStatusKey,
		Value:     string(payload),
		Type:      domain.ConfigTypeJSON,
		UpdatedBy: "refresh-engine",
	})
	return err
}

func (s *ScopedJobStatusStore) Read(ctx context.Context) (*domain.RefreshJobStatus, error) {
	entry, err := s.entries.Get(ctx, domain.ScopeGlobal, JobStatusKey)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	var status domain.RefreshJobStatus
	if err := json.Unmarshal([]byte(entry.Value), &status); err != nil {
		return nil, fmt.Errorf("decode job status: %w", err)
	}
	return &status, nil
}
