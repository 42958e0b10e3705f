package votingledger

import (
	"log/slog"
	"time"

	httpadapter "tallybox/contexts/voting-escrow/voting-ledger/adapters/http"
	"tallybox/contexts/voting-escrow/voting-ledger/adapters/memory"
	"tallybox/contexts/voting-escrow/voting-ledger/application/commands"
	"tallybox/contexts/voting-escrow/voting-ledger/application/queries"
	"tallybox/contexts/voting-escrow/voting-ledger/domain/entities"
	"tallybox/contexts/voting-escrow/voting-ledger/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Ledger   ports.LedgerRepository
	Treasury ports.Treasury
	Outbox   ports.OutboxWriter
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   *slog.Logger
}

func NewModule(deps Dependencies) Module {
	ledgerUseCase := commands.LedgerUseCase{
		Ledger:   deps.Ledger,
		Treasury: deps.Treasury,
		Outbox:   deps.Outbox,
		Clock:    deps.Clock,
		IDGen:    deps.IDGen,
		Logger:   deps.Logger,
	}
	statusUseCase := queries.StatusUseCase{
		Ledger: deps.Ledger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Ledger: ledgerUseCase,
			Status: statusUseCase,
			Logger: deps.Logger,
		},
	}
}

func NewInMemoryModule(adminID string, logger *slog.Logger) Module {
	store := memory.NewStore(entities.NewLedger(adminID, time.Now().UTC()))
	module := NewModule(Dependencies{
		Ledger:   store,
		Treasury: store,
		Outbox:   store,
		Clock:    store,
		IDGen:    store,
		Logger:   logger,
	})
	module.Store = store
	return module
}
