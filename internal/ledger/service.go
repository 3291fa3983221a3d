package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/nexusarena/payment-service/pkg/db"
	"github.com/nexusarena/payment-service/pkg/db/models"
	"github.com/nexusarena/payment-service/pkg/enums"
	pkgerrors "github.com/nexusarena/payment-service/pkg/errors"
	"github.com/nexusarena/payment-service/pkg/logger"
	"github.com/nexusarena/payment-service/pkg/metrics"
	"github.com/nexusarena/payment-service/pkg/outbox"
	"github.com/nexusarena/payment-service/pkg/outbox/payloads"
	"github.com/nexusarena/payment-service/pkg/pagination"
)

const referenceIndex = "ux_wallet_transactions_reference"

// ErrDuplicateEntry is returned when an entry of the same type already exists
// for the referenced payment or payout.
var ErrDuplicateEntry = errors.New("ledger entry already recorded for reference")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams groups dependencies for the ledger service.
type ServiceParams struct {
	Repository        Repository
	TransactionRunner txRunner
	Emitter           eventEmitter
	Metrics           *metrics.LedgerMetrics
	Logger            *logger.Logger
}

// Service is the only writer of wallet balances.
type Service struct {
	repo     Repository
	txRunner txRunner
	emitter  eventEmitter
	metrics  *metrics.LedgerMetrics
	logg     *logger.Logger
}

// ApplyInput describes one signed balance change.
type ApplyInput struct {
	UserID        uuid.UUID
	Type          enums.WalletTransactionType
	AmountCents   int64
	Description   string
	ReferenceID   *uuid.UUID
	ReferenceType *enums.ReferenceType
	Actor         *outbox.ActorRef
}

// ConsistencyReport compares the cached balance with the ledger.
type ConsistencyReport struct {
	UserID                uuid.UUID `json:"userId"`
	BalanceCents          int64     `json:"balanceCents"`
	LedgerSumCents        int64     `json:"ledgerSumCents"`
	EntryCount            int64     `json:"entryCount"`
	LastBalanceAfterCents *int64    `json:"lastBalanceAfterCents,omitempty"`
	Consistent            bool      `json:"consistent"`
}

// NewService wires a ledger service. The emitter and metrics are optional.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repository required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		repo:     params.Repository,
		txRunner: params.TransactionRunner,
		emitter:  params.Emitter,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// GetOrCreateWallet returns the user's wallet, creating an empty one on first use.
func (s *Service) GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return s.GetOrCreateWalletWithTx(ctx, nil, userID)
}

// GetOrCreateWalletWithTx is GetOrCreateWallet inside the caller's transaction.
func (s *Service) GetOrCreateWalletWithTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	repo := s.repo.WithTx(tx)
	if err := repo.EnsureWallet(ctx, userID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}
	wallet, err := repo.FindWallet(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

// GetBalance returns the wallet with its current balance.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return s.GetOrCreateWallet(ctx, userID)
}

// WalletByProviderCustomer resolves the wallet linked to a provider customer.
func (s *Service) WalletByProviderCustomer(ctx context.Context, customerID string) (*models.Wallet, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	wallet, err := s.repo.FindWalletByProviderCustomer(ctx, customerID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found for customer")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet by customer")
	}
	return wallet, nil
}

// ApplyTransaction applies input in its own transaction.
func (s *Service) ApplyTransaction(ctx context.Context, input ApplyInput) (*models.WalletTransaction, error) {
	var entry *models.WalletTransaction
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = s.ApplyTransactionWithTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ApplyTransactionWithTx locks the wallet row, checks the resulting balance,
// then writes the new balance and the ledger entry. Nothing is written when
// the balance would go negative.
func (s *Service) ApplyTransactionWithTx(ctx context.Context, tx *gorm.DB, input ApplyInput) (*models.WalletTransaction, error) {
	if err := validateApplyInput(input); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	if err := repo.EnsureWallet(ctx, input.UserID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}
	wallet, err := repo.LockWallet(ctx, input.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
	}

	newBalance := wallet.BalanceCents + input.AmountCents
	if newBalance < 0 {
		s.metrics.IncInsufficientFunds()
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient wallet balance").WithDetails(map[string]any{
			"balance":   wallet.BalanceCents,
			"requested": -input.AmountCents,
		})
	}

	if err := repo.UpdateBalance(ctx, input.UserID, newBalance); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balance")
	}

	entry := &models.WalletTransaction{
		UserID:            input.UserID,
		Type:              input.Type,
		AmountCents:       input.AmountCents,
		BalanceAfterCents: newBalance,
		Description:       strings.TrimSpace(input.Description),
		ReferenceID:       input.ReferenceID,
		ReferenceType:     input.ReferenceType,
	}
	if err := repo.InsertTransaction(ctx, entry); err != nil {
		if dbpkg.IsUniqueViolation(err, referenceIndex) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, ErrDuplicateEntry, "ledger entry already recorded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert ledger entry")
	}

	if s.emitter != nil {
		if err := s.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletTransactionRecorded,
			AggregateType: enums.AggregateWallet,
			AggregateID:   input.UserID,
			Actor:         input.Actor,
			Data: payloads.WalletTransactionRecorded{
				TransactionID:     entry.ID,
				UserID:            entry.UserID,
				Type:              entry.Type,
				AmountCents:       entry.AmountCents,
				BalanceAfterCents: entry.BalanceAfterCents,
				ReferenceID:       entry.ReferenceID,
				ReferenceType:     entry.ReferenceType,
				RecordedAt:        time.Now().UTC(),
			},
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit ledger event")
		}
	}

	s.metrics.ObserveTransaction(string(entry.Type), entry.AmountCents)
	return entry, nil
}

// ListTransactions pages through the user's ledger, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, filter TransactionFilter) (pagination.Page[models.WalletTransaction], error) {
	if userID == uuid.Nil {
		return pagination.Page[models.WalletTransaction]{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if filter.Type != nil && !filter.Type.IsValid() {
		return pagination.Page[models.WalletTransaction]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	filter.Params = filter.Params.Normalize()

	rows, total, err := s.repo.ListTransactions(ctx, userID, filter)
	if err != nil {
		return pagination.Page[models.WalletTransaction]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	return pagination.NewPage(rows, total, filter.Params), nil
}

// SetProviderCustomer links the wallet to a provider customer id.
func (s *Service) SetProviderCustomer(ctx context.Context, userID uuid.UUID, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if _, err := s.GetOrCreateWallet(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.SetProviderCustomer(ctx, userID, customerID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store provider customer")
	}
	return nil
}

// SetConnectAccount links the wallet to a provider connected account.
func (s *Service) SetConnectAccount(ctx context.Context, userID uuid.UUID, accountID string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if _, err := s.GetOrCreateWallet(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.SetConnectAccount(ctx, userID, accountID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store connect account")
	}
	return nil
}

// VerifyConsistency checks that the cached balance equals the sum of the
// user's ledger entries.
func (s *Service) VerifyConsistency(ctx context.Context, userID uuid.UUID) (*ConsistencyReport, error) {
	wallet, err := s.repo.FindWallet(ctx, userID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	totals, err := s.repo.LedgerTotals(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger entries")
	}
	return &ConsistencyReport{
		UserID:                userID,
		BalanceCents:          wallet.BalanceCents,
		LedgerSumCents:        totals.SumCents,
		EntryCount:            totals.EntryCount,
		LastBalanceAfterCents: totals.LastBalanceAfterCents,
		Consistent:            wallet.BalanceCents == totals.SumCents,
	}, nil
}

// ListWalletUserIDs pages wallet owners in id order for audits.
func (s *Service) ListWalletUserIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	ids, err := s.repo.ListWalletUserIDs(ctx, after, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallets")
	}
	return ids, nil
}

// IsDuplicateEntry reports whether err means the referenced entry already exists.
func IsDuplicateEntry(err error) bool {
	return errors.Is(err, ErrDuplicateEntry)
}

func validateApplyInput(input ApplyInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	if input.AmountCents == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be non-zero")
	}
	if (input.ReferenceID == nil) != (input.ReferenceType == nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference id and type must be set together")
	}
	if input.ReferenceType != nil && !input.ReferenceType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid reference type")
	}
	return nil
}
