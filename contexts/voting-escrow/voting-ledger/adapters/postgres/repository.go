package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"tallybox/contexts/voting-escrow/voting-ledger/domain/entities"
	domainerrors "tallybox/contexts/voting-escrow/voting-ledger/domain/errors"
	"tallybox/contexts/voting-escrow/voting-ledger/ports"
	"tallybox/internal/shared/outbox"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// singletonLedgerID keys the one-row ledger table; one deployment runs
	// exactly one ledger instance.
	singletonLedgerID = "ledger"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// EnsureLedger creates the singleton ledger row on first boot. The
// administrator identity is fixed here and immutable afterwards.
func (r *Repository) EnsureLedger(ctx context.Context, adminID string, now time.Time) error {
	_, err := r.GetLedger(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domainerrors.ErrLedgerNotFound) {
		return err
	}
	if strings.TrimSpace(adminID) == "" {
		return domainerrors.ErrInvalidInput
	}
	return r.SaveLedger(ctx, entities.NewLedger(adminID, now))
}

func (r *Repository) GetLedger(ctx context.Context) (entities.Ledger, error) {
	var row ledgerModel
	err := r.db.WithContext(ctx).
		Where("id = ?", singletonLedgerID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Ledger{}, domainerrors.ErrLedgerNotFound
		}
		return entities.Ledger{}, r.logError("ledger_repo_get_ledger_failed", err)
	}

	var candidates []candidateModel
	if err := r.db.WithContext(ctx).
		Order("position ASC").
		Find(&candidates).Error; err != nil {
		return entities.Ledger{}, r.logError("ledger_repo_list_candidates_failed", err)
	}
	var voters []voterModel
	if err := r.db.WithContext(ctx).Find(&voters).Error; err != nil {
		return entities.Ledger{}, r.logError("ledger_repo_list_voters_failed", err)
	}
	return assembleLedger(row, candidates, voters), nil
}

// SaveLedger persists the whole aggregate in one transaction so a command
// either commits fully or not at all.
func (r *Repository) SaveLedger(ctx context.Context, ledger entities.Ledger) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveLedgerTx(tx, ledger)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return r.logError("ledger_repo_save_ledger_failed", err,
			"phase", string(ledger.Phase),
			"balance", uint64(ledger.Balance),
		)
	}
	return nil
}

// SaveLedgerWithTransfer commits the account credit and the aggregate save in
// the same transaction. Escrowed value leaves the ledger balance only through
// this path, and only together with the transition that released it.
func (r *Repository) SaveLedgerWithTransfer(
	ctx context.Context,
	ledger entities.Ledger,
	destination string,
	amount entities.Amount,
) error {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return domainerrors.ErrTransferFailed
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := creditAccountTx(tx, destination, amount); err != nil {
			return err
		}
		return saveLedgerTx(tx, ledger)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return r.logError("ledger_repo_save_with_transfer_failed", err,
			"destination", destination,
			"amount", uint64(amount),
		)
	}
	return nil
}

func saveLedgerTx(tx *gorm.DB, ledger entities.Ledger) error {
	row := ledgerModelFromEntity(ledger)
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"admin_id":   row.AdminID,
			"phase":      row.Phase,
			"winner":     row.Winner,
			"started_at": row.StartedAt,
			"balance":    row.Balance,
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error; err != nil {
		return err
	}

	for position, candidateID := range ledger.Candidates {
		candidate := candidateModel{
			CandidateID: candidateID,
			Position:    position,
			Tally:       ledger.Tallies[candidateID],
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "candidate_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"position": candidate.Position,
				"tally":    candidate.Tally,
			}),
		}).Create(&candidate).Error; err != nil {
			return err
		}
	}

	for voterID := range ledger.Voters {
		voter := voterModel{VoterID: voterID}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "voter_id"}},
			DoNothing: true,
		}).Create(&voter).Error; err != nil {
			return err
		}
	}
	return nil
}

func creditAccountTx(tx *gorm.DB, destination string, amount entities.Amount) error {
	row := accountModel{
		AccountID: destination,
		Balance:   uint64(amount),
		UpdatedAt: time.Now().UTC(),
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"balance":    gorm.Expr("payout_accounts.balance + ?", uint64(amount)),
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	row := outboxModel{
		OutboxID:     outboxID,
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outbox.StatusPending,
		CreatedAt:    createdAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return r.logError("ledger_repo_append_outbox_failed", err,
			"outbox_id", outboxID,
			"event_type", row.EventType,
		)
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outbox.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_pending_outbox_failed", err)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      row.Payload,
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	publishedAt = publishedAt.UTC()
	result := r.db.WithContext(ctx).Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outbox.StatusPublished,
			"published_at": &publishedAt,
		})
	if result.Error != nil {
		return r.logError("ledger_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

// RecordSettlement inserts the settlement row once per event. A conflicting
// insert means the event was already processed and reports a replay.
func (r *Repository) RecordSettlement(ctx context.Context, record ports.SettlementRecord) (bool, error) {
	eventID := strings.TrimSpace(record.EventID)
	if eventID == "" {
		return false, domainerrors.ErrInvalidInput
	}
	row := settlementModel{
		EventID:    eventID,
		Kind:       strings.TrimSpace(record.Kind),
		Recipient:  strings.TrimSpace(record.Recipient),
		Amount:     uint64(record.Amount),
		RecordedAt: record.RecordedAt.UTC(),
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		return false, r.logError("ledger_repo_record_settlement_failed", result.Error,
			"event_id", eventID,
		)
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) ListSettlements(ctx context.Context) ([]ports.SettlementRecord, error) {
	var rows []settlementModel
	if err := r.db.WithContext(ctx).
		Order("recorded_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_settlements_failed", err)
	}
	items := make([]ports.SettlementRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.SettlementRecord{
			EventID:    row.EventID,
			Kind:       row.Kind,
			Recipient:  row.Recipient,
			Amount:     entities.Amount(row.Amount),
			RecordedAt: row.RecordedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "voting-escrow/voting-ledger",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("ledger repository operation failed", fields...)
	return err
}

type ledgerModel struct {
	ID        string     `gorm:"column:id;primaryKey"`
	AdminID   string     `gorm:"column:admin_id"`
	Phase     string     `gorm:"column:phase"`
	Winner    string     `gorm:"column:winner"`
	StartedAt *time.Time `gorm:"column:started_at"`
	Balance   uint64     `gorm:"column:balance"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

func (ledgerModel) TableName() string {
	return "voting_ledger"
}

type candidateModel struct {
	CandidateID string `gorm:"column:candidate_id;primaryKey"`
	Position    int    `gorm:"column:position"`
	Tally       uint64 `gorm:"column:tally"`
}

func (candidateModel) TableName() string {
	return "ledger_candidates"
}

type voterModel struct {
	VoterID string `gorm:"column:voter_id;primaryKey"`
}

func (voterModel) TableName() string {
	return "ledger_voters"
}

type accountModel struct {
	AccountID string    `gorm:"column:account_id;primaryKey"`
	Balance   uint64    `gorm:"column:balance"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (accountModel) TableName() string {
	return "payout_accounts"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "ledger_outbox"
}

type settlementModel struct {
	EventID    string    `gorm:"column:event_id;primaryKey"`
	Kind       string    `gorm:"column:kind"`
	Recipient  string    `gorm:"column:recipient"`
	Amount     uint64    `gorm:"column:amount"`
	RecordedAt time.Time `gorm:"column:recorded_at"`
}

func (settlementModel) TableName() string {
	return "ledger_settlements"
}

func ledgerModelFromEntity(ledger entities.Ledger) ledgerModel {
	row := ledgerModel{
		ID:        singletonLedgerID,
		AdminID:   strings.TrimSpace(ledger.AdminID),
		Phase:     string(ledger.Phase),
		Winner:    strings.TrimSpace(ledger.Winner),
		Balance:   uint64(ledger.Balance),
		CreatedAt: ledger.CreatedAt.UTC(),
		UpdatedAt: ledger.UpdatedAt.UTC(),
	}
	if !ledger.StartedAt.IsZero() {
		startedAt := ledger.StartedAt.UTC()
		row.StartedAt = &startedAt
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func assembleLedger(row ledgerModel, candidates []candidateModel, voters []voterModel) entities.Ledger {
	ledger := entities.Ledger{
		AdminID:    row.AdminID,
		Phase:      entities.Phase(row.Phase),
		Winner:     row.Winner,
		Balance:    entities.Amount(row.Balance),
		Candidates: make([]string, 0, len(candidates)),
		Tallies:    make(map[string]uint64, len(candidates)),
		Voters:     make(map[string]bool, len(voters)),
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
	if row.StartedAt != nil {
		ledger.StartedAt = row.StartedAt.UTC()
	}
	for _, candidate := range candidates {
		ledger.Candidates = append(ledger.Candidates, candidate.CandidateID)
		ledger.Tallies[candidate.CandidateID] = candidate.Tally
	}
	for _, voter := range voters {
		ledger.Voters[voter.VoterID] = true
	}
	return ledger
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.LedgerRepository = (*Repository)(nil)
var _ ports.Treasury = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.SettlementStore = (*Repository)(nil)
