package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"tallybox/contexts/voting-escrow/voting-ledger/domain/entities"
	domainerrors "tallybox/contexts/voting-escrow/voting-ledger/domain/errors"
	"tallybox/contexts/voting-escrow/voting-ledger/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	seq       uint64
	published bool
}

// Store is the in-memory adapter backing tests and local wiring. It holds the
// single ledger aggregate, recipient account balances for treasury transfers,
// the outbox, and the settlement journal.
type Store struct {
	mu sync.RWMutex

	ledger      entities.Ledger
	initialized bool
	accounts    map[string]entities.Amount
	outbox      map[string]outboxRecord
	outboxSeq   uint64
	settlements []ports.SettlementRecord
	settled     map[string]bool
	transferErr error
}

func NewStore(ledger entities.Ledger) *Store {
	return &Store{
		ledger:      ledger.Clone(),
		initialized: true,
		accounts:    make(map[string]entities.Amount),
		outbox:      make(map[string]outboxRecord),
		settled:     make(map[string]bool),
	}
}

func (s *Store) GetLedger(_ context.Context) (entities.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return entities.Ledger{}, domainerrors.ErrLedgerNotFound
	}
	return s.ledger.Clone(), nil
}

func (s *Store) SaveLedger(_ context.Context, ledger entities.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = ledger.Clone()
	s.initialized = true
	return nil
}

// SetTransferFailure makes subsequent treasury commits fail; pass nil to
// restore normal behavior. Test hook.
func (s *Store) SetTransferFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transferErr = err
}

// SaveLedgerWithTransfer credits the recipient and replaces the stored
// aggregate under one lock hold, so a failure applies neither effect.
func (s *Store) SaveLedgerWithTransfer(
	_ context.Context,
	ledger entities.Ledger,
	destination string,
	amount entities.Amount,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transferErr != nil {
		return s.transferErr
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return domainerrors.ErrTransferFailed
	}
	s.accounts[destination] += amount
	s.ledger = ledger.Clone()
	s.initialized = true
	return nil
}

// AccountBalance reports the value credited to a recipient so far.
func (s *Store) AccountBalance(destination string) entities.Amount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[strings.TrimSpace(destination)]
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outboxSeq++
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
		seq: s.outboxSeq,
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows := make([]outboxRecord, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		rows = append(rows, row)
	}
	// Append order breaks created-at ties so listing stays deterministic.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].message.CreatedAt.Equal(rows[j].message.CreatedAt) {
			return rows[i].seq < rows[j].seq
		}
		return rows[i].message.CreatedAt.Before(rows[j].message.CreatedAt)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.message)
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) RecordSettlement(_ context.Context, record ports.SettlementRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eventID := strings.TrimSpace(record.EventID)
	if eventID == "" {
		return false, domainerrors.ErrInvalidInput
	}
	if s.settled[eventID] {
		return false, nil
	}
	s.settled[eventID] = true
	s.settlements = append(s.settlements, record)
	return true, nil
}

func (s *Store) ListSettlements(_ context.Context) ([]ports.SettlementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ports.SettlementRecord(nil), s.settlements...), nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var _ ports.LedgerRepository = (*Store)(nil)
var _ ports.Treasury = (*Store)(nil)
var _ ports.OutboxWriter = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.SettlementStore = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
