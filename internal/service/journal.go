package service

import (
	"context"
	"fmt"

	"github.com/zenyourself/reflection-core/internal/journal"
	"github.com/zenyourself/reflection-core/internal/model"
	"github.com/zenyourself/reflection-core/pkg/logger"
)

// JournalService exposes read access to the journal store.
type JournalService struct {
	store  journal.Store
	logger *logger.Logger
}

// NewJournalService creates a journal service.
func NewJournalService(store journal.Store, log *logger.Logger) *JournalService {
	return &JournalService{store: store, logger: log}
}

// List returns the user's journal entries, newest first.
func (s *JournalService) List(ctx context.Context, userID string, limit int) (*model.ListJournalResponse, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	entries, err := s.store.List(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	return &model.ListJournalResponse{Entries: entries, Total: len(entries)}, nil
}
