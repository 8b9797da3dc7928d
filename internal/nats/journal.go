package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/zenyourself/reflection-core/internal/model"
)

const (
	// StreamName is the name of the journal stream.
	StreamName = "JOURNAL"

	// SubjectPrefix is the prefix for all journal subjects.
	SubjectPrefix = "journal"

	// DuplicateWindow is how long JetStream rejects republished entry IDs.
	DuplicateWindow = 10 * time.Minute

	fetchMax = 500
)

// JournalStream persists journal entries to a JetStream stream. Entries are
// published with the entry ID as the message ID, so JetStream deduplication
// backs the idempotent-by-id persist contract.
type JournalStream struct {
	client *Client
}

// NewJournalStream creates a journal stream store.
func NewJournalStream(client *Client) *JournalStream {
	return &JournalStream{client: client}
}

// EnsureStream ensures the journal stream exists with proper configuration.
func (s *JournalStream) EnsureStream(ctx context.Context) error {
	js := s.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      5 * 365 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Duplicates:  DuplicateWindow,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Saved reflection journal entries",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EntrySubject returns the subject for a journal entry.
func EntrySubject(userID, entryID string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, userID, entryID)
}

// userFilter returns the filter subject for all entries of a user.
func userFilter(userID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, userID)
}

// Persist publishes a journal entry. Republishing the same entry ID within
// the duplicate window is a no-op on the stream.
func (s *JournalStream) Persist(ctx context.Context, entry *model.JournalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	msg := &nats.Msg{
		Subject: EntrySubject(entry.UserID, entry.ID),
		Data:    data,
		Header:  nats.Header{"Nats-Msg-Id": []string{entry.ID}},
	}
	if _, err := s.client.JetStream().PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish entry: %w", err)
	}
	return nil
}

// List retrieves journal entries for a user, newest first.
func (s *JournalStream) List(ctx context.Context, userID string, limit int) ([]model.JournalEntry, error) {
	js := s.client.JetStream()

	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: userFilter(userID),
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckNonePolicy,
		InactiveThreshold: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := cons.FetchNoWait(fetchMax)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch entries: %w", err)
	}

	var entries []model.JournalEntry
	for msg := range batch.Messages() {
		var entry model.JournalEntry
		if err := json.Unmarshal(msg.Data(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := batch.Error(); err != nil {
		return nil, fmt.Errorf("failed to drain entries: %w", err)
	}

	// Newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
