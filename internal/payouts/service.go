package payouts

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/nexusarena/payment-service/internal/ledger"
	dbpkg "github.com/nexusarena/payment-service/pkg/db"
	"github.com/nexusarena/payment-service/pkg/db/models"
	"github.com/nexusarena/payment-service/pkg/enums"
	pkgerrors "github.com/nexusarena/payment-service/pkg/errors"
	"github.com/nexusarena/payment-service/pkg/logger"
	"github.com/nexusarena/payment-service/pkg/outbox"
	"github.com/nexusarena/payment-service/pkg/outbox/payloads"
	"github.com/nexusarena/payment-service/pkg/pagination"
	pkgstripe "github.com/nexusarena/payment-service/pkg/stripe"
	"github.com/nexusarena/payment-service/pkg/tournaments"
	"github.com/nexusarena/payment-service/pkg/types"
)

const (
	// MinPayoutCents is the smallest withdrawal accepted.
	MinPayoutCents       = 100
	maxDescriptionLength = 500

	defaultProviderTimeout = 15 * time.Second
	defaultArrivalWindow   = 7 * 24 * time.Hour
	defaultAccountType     = "express"

	requestDescription  = "Payout request"
	canceledDescription = "Payout canceled"
	failedDescription   = "Payout failed - amount refunded"
	defaultFailure      = "Payout failed"

	metadataConnectAccount = "connect_account_id"

	// Account status values reported to clients.
	AccountStatusNotConnected = "not_connected"
	AccountStatusActive       = "active"
	AccountStatusPending      = "pending"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type walletLedger interface {
	GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetOrCreateWalletWithTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Wallet, error)
	SetConnectAccount(ctx context.Context, userID uuid.UUID, accountID string) error
	ApplyTransactionWithTx(ctx context.Context, tx *gorm.DB, input ledger.ApplyInput) (*models.WalletTransaction, error)
}

type tournamentLookup interface {
	GetTournament(ctx context.Context, userID, tournamentID uuid.UUID) (*tournaments.Tournament, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams groups dependencies for the payout engine. Tournaments and
// Emitter are optional.
type ServiceParams struct {
	Repository         Repository
	Ledger             walletLedger
	Stripe             StripePayoutsClient
	Tournaments        tournamentLookup
	TransactionRunner  txRunner
	Emitter            eventEmitter
	Logger             *logger.Logger
	ProviderTimeout    time.Duration
	DefaultArrival     time.Duration
	FrontendURL        string
	ConnectAccountType string
}

// Service moves wallet funds out through the payout provider.
type Service struct {
	repo            Repository
	ledger          walletLedger
	stripe          StripePayoutsClient
	tournaments     tournamentLookup
	txRunner        txRunner
	emitter         eventEmitter
	logg            *logger.Logger
	providerTimeout time.Duration
	defaultArrival  time.Duration
	frontendURL     string
	accountType     string
	now             func() time.Time
}

// RequestInput describes a withdrawal.
type RequestInput struct {
	AmountCents  int64
	Currency     string
	PayoutMethod string
	TournamentID *uuid.UUID
	Description  string
}

// CancelResult reports a canceled payout and the credited amount.
type CancelResult struct {
	Payout              *models.Payout
	RefundedAmountCents int64
}

// ConnectAccountInput opens a provider connected account for the user.
type ConnectAccountInput struct {
	Country      string
	Email        string
	BusinessType string
}

// ConnectAccountResult carries the new account and its onboarding link.
type ConnectAccountResult struct {
	AccountID     string `json:"accountId"`
	OnboardingURL string `json:"onboardingUrl"`
}

// AccountStatus summarizes the user's connected account.
type AccountStatus struct {
	Status          string   `json:"status"`
	PayoutsEnabled  bool     `json:"payoutsEnabled"`
	Country         string   `json:"country,omitempty"`
	DefaultCurrency string   `json:"defaultCurrency,omitempty"`
	CurrentlyDue    []string `json:"currentlyDue,omitempty"`
}

// ReconcileResult counts the outcomes of one reconciliation pass.
type ReconcileResult struct {
	Checked int
	Paid    int
	Failed  int
	Waiting int
}

// NewService wires the payout engine.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout repository required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger required")
	}
	if params.Stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	timeout := params.ProviderTimeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	arrival := params.DefaultArrival
	if arrival <= 0 {
		arrival = defaultArrivalWindow
	}
	accountType := strings.TrimSpace(params.ConnectAccountType)
	if accountType == "" {
		accountType = defaultAccountType
	}
	return &Service{
		repo:            params.Repository,
		ledger:          params.Ledger,
		stripe:          params.Stripe,
		tournaments:     params.Tournaments,
		txRunner:        params.TransactionRunner,
		emitter:         params.Emitter,
		logg:            params.Logger,
		providerTimeout: timeout,
		defaultArrival:  arrival,
		frontendURL:     strings.TrimRight(params.FrontendURL, "/"),
		accountType:     accountType,
		now:             time.Now,
	}, nil
}

// RequestPayout debits the wallet and, for bank payouts on a connected
// account, creates the provider payout in the same unit of work. Any failure,
// including a provider error, leaves no payout row and no ledger entry.
func (s *Service) RequestPayout(ctx context.Context, userID uuid.UUID, input RequestInput) (*models.Payout, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.AmountCents < MinPayoutCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be at least 100 cents").WithDetails(map[string]any{
			"minimum": MinPayoutCents,
		})
	}
	currency, err := enums.ParseCurrency(input.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency")
	}
	method := enums.PayoutMethodBankAccount
	if raw := strings.TrimSpace(input.PayoutMethod); raw != "" {
		method, err = enums.ParsePayoutMethod(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payout method")
		}
	}
	description := strings.TrimSpace(input.Description)
	if len(description) > maxDescriptionLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description must be at most 500 characters")
	}

	wallet, err := s.ledger.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet.BalanceCents < input.AmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient wallet balance").WithDetails(map[string]any{
			"balance":   wallet.BalanceCents,
			"requested": input.AmountCents,
		})
	}

	if input.TournamentID != nil {
		s.verifyTournament(ctx, userID, *input.TournamentID)
	}

	var created *models.Payout
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.ledger.GetOrCreateWalletWithTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		connectAccount := ""
		if locked.ProviderConnectAccountID != nil {
			connectAccount = strings.TrimSpace(*locked.ProviderConnectAccountID)
		}
		useProvider := method == enums.PayoutMethodBankAccount && connectAccount != ""

		payout := &models.Payout{
			ID:           uuid.New(),
			UserID:       userID,
			TournamentID: input.TournamentID,
			AmountCents:  input.AmountCents,
			Currency:     currency,
			Status:       enums.PayoutStatusPending,
			PayoutMethod: method,
			Description:  description,
			Metadata:     types.Metadata{},
		}
		if useProvider {
			payout.Status = enums.PayoutStatusProcessing
			payout.Metadata[metadataConnectAccount] = connectAccount
		}

		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
		}

		entryDescription := description
		if entryDescription == "" {
			entryDescription = requestDescription
		}
		if _, err := s.ledger.ApplyTransactionWithTx(ctx, tx, ledger.ApplyInput{
			UserID:        userID,
			Type:          enums.WalletTransactionPayout,
			AmountCents:   -payout.AmountCents,
			Description:   entryDescription,
			ReferenceID:   refID(payout.ID),
			ReferenceType: refType(),
			Actor:         outbox.UserActor(userID),
		}); err != nil {
			return err
		}

		arrival := s.now().UTC().Add(s.defaultArrival)
		if useProvider {
			providerPayout, err := s.createProviderPayout(ctx, payout, connectAccount)
			if err != nil {
				return err
			}
			providerID := providerPayout.ID
			payout.ProviderPayoutID = &providerID
			if providerPayout.ArrivalDate > 0 {
				arrival = time.Unix(providerPayout.ArrivalDate, 0).UTC()
			}
		}
		payout.EstimatedArrival = &arrival

		if err := repo.Save(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout")
		}
		if err := s.emit(ctx, tx, enums.EventPayoutRequested, payout, false, outbox.UserActor(userID)); err != nil {
			return err
		}
		created = payout
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.info(ctx, "payout requested", map[string]any{
		"payout_id":    created.ID.String(),
		"amount_cents": created.AmountCents,
		"status":       created.Status,
	})
	return created, nil
}

// CancelPayout returns a pending payout's funds to the wallet.
func (s *Service) CancelPayout(ctx context.Context, userID, payoutID uuid.UUID) (*CancelResult, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required")
	}

	var result *CancelResult
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payout, err := repo.FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			return notFoundOr(err, "lock payout")
		}
		if payout.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		if payout.Status != enums.PayoutStatusPending {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "only pending payouts can be canceled").WithDetails(map[string]any{
				"status": payout.Status,
			})
		}

		payout.Status = enums.PayoutStatusCanceled
		if err := repo.Save(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout")
		}
		if _, err := s.ledger.ApplyTransactionWithTx(ctx, tx, ledger.ApplyInput{
			UserID:        payout.UserID,
			Type:          enums.WalletTransactionPayoutCanceled,
			AmountCents:   payout.AmountCents,
			Description:   canceledDescription,
			ReferenceID:   refID(payout.ID),
			ReferenceType: refType(),
			Actor:         outbox.UserActor(userID),
		}); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, enums.EventPayoutCanceled, payout, true, outbox.UserActor(userID)); err != nil {
			return err
		}
		result = &CancelResult{Payout: payout, RefundedAmountCents: payout.AmountCents}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// OnPayoutPaid settles a processing payout. Terminal payouts are left as they are.
func (s *Service) OnPayoutPaid(ctx context.Context, providerPayoutID string) error {
	providerPayoutID = strings.TrimSpace(providerPayoutID)
	if providerPayoutID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider payout id is required")
	}

	untracked := false
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payout, err := repo.FindByProviderIDForUpdate(ctx, providerPayoutID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				untracked = true
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payout")
		}
		if payout.Status.IsTerminal() {
			return nil
		}
		processed := s.now().UTC()
		payout.Status = enums.PayoutStatusPaid
		payout.ProcessedAt = &processed
		if err := repo.Save(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout")
		}
		return s.emit(ctx, tx, enums.EventPayoutPaid, payout, false, outbox.ProviderActor())
	})
	if err != nil {
		return err
	}
	if untracked {
		s.warn(ctx, "provider payout not tracked; ignoring", map[string]any{"provider_payout_id": providerPayoutID})
	}
	return nil
}

// OnPayoutFailed marks the payout failed and credits the amount back exactly
// once, however many times the notification is delivered.
func (s *Service) OnPayoutFailed(ctx context.Context, providerPayoutID, reason string) error {
	providerPayoutID = strings.TrimSpace(providerPayoutID)
	if providerPayoutID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider payout id is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultFailure
	}

	untracked := false
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payout, err := repo.FindByProviderIDForUpdate(ctx, providerPayoutID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				untracked = true
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payout")
		}
		switch payout.Status {
		case enums.PayoutStatusFailed, enums.PayoutStatusCanceled:
			return nil
		}

		processed := s.now().UTC()
		payout.Status = enums.PayoutStatusFailed
		payout.ProcessedAt = &processed
		payout.FailureReason = &reason
		if err := repo.Save(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout")
		}
		if _, err := s.ledger.ApplyTransactionWithTx(ctx, tx, ledger.ApplyInput{
			UserID:        payout.UserID,
			Type:          enums.WalletTransactionPayoutFailed,
			AmountCents:   payout.AmountCents,
			Description:   failedDescription,
			ReferenceID:   refID(payout.ID),
			ReferenceType: refType(),
			Actor:         outbox.ProviderActor(),
		}); err != nil {
			return err
		}
		return s.emit(ctx, tx, enums.EventPayoutFailed, payout, true, outbox.ProviderActor())
	})
	if ledger.IsDuplicateEntry(err) {
		s.info(ctx, "payout already compensated", map[string]any{"provider_payout_id": providerPayoutID})
		return nil
	}
	if err != nil {
		return err
	}
	if untracked {
		s.warn(ctx, "provider payout not tracked; ignoring", map[string]any{"provider_payout_id": providerPayoutID})
	}
	return nil
}

// GetBalance returns the user's wallet, creating an empty one on first use.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return s.ledger.GetOrCreateWallet(ctx, userID)
}

// ListPayouts pages the user's payouts, newest first.
func (s *Service) ListPayouts(ctx context.Context, userID uuid.UUID, filter ListFilter) (pagination.Page[models.Payout], error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return pagination.Page[models.Payout]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout status")
	}
	filter.Params = filter.Params.Normalize()
	rows, total, err := s.repo.ListByUser(ctx, userID, filter)
	if err != nil {
		return pagination.Page[models.Payout]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	return pagination.NewPage(rows, total, filter.Params), nil
}

// GetPayout returns one of the user's payouts.
func (s *Service) GetPayout(ctx context.Context, userID, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		return nil, notFoundOr(err, "load payout")
	}
	if payout.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	return payout, nil
}

// CreateConnectAccount opens a connected account and returns its onboarding link.
func (s *Service) CreateConnectAccount(ctx context.Context, userID uuid.UUID, input ConnectAccountInput) (*ConnectAccountResult, error) {
	country := strings.ToUpper(strings.TrimSpace(input.Country))
	if len(country) != 2 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "country must be a 2-letter code")
	}
	email := strings.TrimSpace(input.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is invalid")
	}
	businessType := strings.ToLower(strings.TrimSpace(input.BusinessType))
	if businessType == "" {
		businessType = "individual"
	}
	if businessType != "individual" && businessType != "company" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business_type must be individual or company")
	}

	wallet, err := s.ledger.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet.ProviderConnectAccountID != nil && *wallet.ProviderConnectAccountID != "" {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "connect account already exists")
	}

	params := &stripe.AccountParams{
		Type:         stripe.String(s.accountType),
		Country:      stripe.String(country),
		Email:        stripe.String(email),
		BusinessType: stripe.String(businessType),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.AddMetadata("user_id", userID.String())
	acct, err := s.stripe.CreateAccount(ctx, params)
	if err != nil {
		return nil, pkgstripe.MapError(err, "create connect account")
	}
	if acct == nil || acct.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "connect account missing id")
	}
	if err := s.ledger.SetConnectAccount(ctx, userID, acct.ID); err != nil {
		return nil, err
	}

	link, err := s.stripe.CreateAccountLink(ctx, &stripe.AccountLinkParams{
		Account:    stripe.String(acct.ID),
		RefreshURL: stripe.String(s.frontendURL + "/settings/payouts"),
		ReturnURL:  stripe.String(s.frontendURL + "/settings/payouts/success"),
		Type:       stripe.String("account_onboarding"),
	})
	if err != nil {
		return nil, pkgstripe.MapError(err, "create account link")
	}
	return &ConnectAccountResult{AccountID: acct.ID, OnboardingURL: link.URL}, nil
}

// AccountStatus reports whether the user can receive provider payouts.
func (s *Service) AccountStatus(ctx context.Context, userID uuid.UUID) (*AccountStatus, error) {
	wallet, err := s.ledger.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet.ProviderConnectAccountID == nil || *wallet.ProviderConnectAccountID == "" {
		return &AccountStatus{Status: AccountStatusNotConnected}, nil
	}
	acct, err := s.stripe.GetAccount(ctx, *wallet.ProviderConnectAccountID, nil)
	if err != nil {
		return nil, pkgstripe.MapError(err, "retrieve connect account")
	}
	status := &AccountStatus{
		Status:          AccountStatusPending,
		PayoutsEnabled:  acct.PayoutsEnabled,
		Country:         acct.Country,
		DefaultCurrency: string(acct.DefaultCurrency),
	}
	if acct.ChargesEnabled {
		status.Status = AccountStatusActive
	}
	if acct.Requirements != nil {
		status.CurrentlyDue = acct.Requirements.CurrentlyDue
	}
	return status, nil
}

// ReconcileProcessing asks the provider about processing payouts that have not
// been updated since olderThan and applies the settled outcome. Errors on one
// payout do not stop the pass.
func (s *Service) ReconcileProcessing(ctx context.Context, olderThan time.Duration, limit int) (ReconcileResult, error) {
	var result ReconcileResult
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	stale, err := s.repo.ListStaleProcessing(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list processing payouts")
	}

	var errs error
	for _, payout := range stale {
		if err := ctx.Err(); err != nil {
			return result, multierr.Append(errs, err)
		}
		result.Checked++
		providerID := *payout.ProviderPayoutID

		params := &stripe.PayoutParams{}
		if acct := payout.Metadata[metadataConnectAccount]; acct != "" {
			params.SetStripeAccount(acct)
		}
		remote, err := s.stripe.GetPayout(ctx, providerID, params)
		if err != nil {
			errs = multierr.Append(errs, pkgstripe.MapError(err, "retrieve payout "+providerID))
			continue
		}

		switch remote.Status {
		case stripe.PayoutStatusPaid:
			if err := s.OnPayoutPaid(ctx, providerID); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			result.Paid++
		case stripe.PayoutStatusFailed, stripe.PayoutStatusCanceled:
			if err := s.OnPayoutFailed(ctx, providerID, remote.FailureMessage); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			result.Failed++
		default:
			result.Waiting++
		}
	}
	return result, errs
}

func (s *Service) createProviderPayout(ctx context.Context, payout *models.Payout, connectAccount string) (*stripe.Payout, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	params := &stripe.PayoutParams{
		Amount:   stripe.Int64(payout.AmountCents),
		Currency: stripe.String(payout.Currency.Lower()),
	}
	if payout.Description != "" {
		params.Description = stripe.String(payout.Description)
	}
	params.AddMetadata("user_id", payout.UserID.String())
	params.AddMetadata("payout_id", payout.ID.String())
	if payout.TournamentID != nil {
		params.AddMetadata("tournament_id", payout.TournamentID.String())
	}
	params.SetStripeAccount(connectAccount)

	created, err := s.stripe.CreatePayout(callCtx, params)
	if err != nil {
		return nil, pkgstripe.MapError(err, "create provider payout")
	}
	if created == nil || created.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "provider payout missing id")
	}
	return created, nil
}

// verifyTournament is advisory: a lookup failure or a non-winner is logged and
// the request continues.
func (s *Service) verifyTournament(ctx context.Context, userID, tournamentID uuid.UUID) {
	if s.tournaments == nil {
		return
	}
	fields := map[string]any{"tournament_id": tournamentID.String()}
	tournament, err := s.tournaments.GetTournament(ctx, userID, tournamentID)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithFields(ctx, fields), "failed to verify tournament", err)
		}
		return
	}
	if !tournament.HasWinner(userID) {
		s.warn(ctx, "payout requester not listed as tournament winner", fields)
	}
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payout *models.Payout, compensated bool, actor *outbox.ActorRef) error {
	if s.emitter == nil {
		return nil
	}
	err := s.emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Actor:         actor,
		Data: payloads.PayoutStatusChanged{
			PayoutID:         payout.ID,
			UserID:           payout.UserID,
			Status:           payout.Status,
			AmountCents:      payout.AmountCents,
			Currency:         payout.Currency,
			PayoutMethod:     payout.PayoutMethod,
			TournamentID:     payout.TournamentID,
			ProviderPayoutID: payout.ProviderPayoutID,
			FailureReason:    payout.FailureReason,
			Compensated:      compensated,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payout event")
	}
	return nil
}

func (s *Service) info(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}

func (s *Service) warn(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), msg)
}

func refID(id uuid.UUID) *uuid.UUID {
	return &id
}

func refType() *enums.ReferenceType {
	t := enums.ReferencePayout
	return &t
}

func notFoundOr(err error, message string) error {
	if dbpkg.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
