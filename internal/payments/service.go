package payments

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
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
	"github.com/nexusarena/payment-service/pkg/types"
)

const (
	// MinPaymentCents is the smallest intent the provider accepts.
	MinPaymentCents      = 50
	maxDescriptionLength = 500

	defaultRefundReason  = "requested_by_customer"
	depositDescription   = "Tournament entry deposit"
	refundDescription    = "Payment refunded"
	invoicePaymentMethod = "subscription"
	invoiceDescription   = "Subscription payment"
	cardMethodType       = "card"
)

var refundReasons = map[string]struct{}{
	"duplicate":             {},
	"fraudulent":            {},
	"requested_by_customer": {},
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type walletLedger interface {
	GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	SetProviderCustomer(ctx context.Context, userID uuid.UUID, customerID string) error
	ApplyTransactionWithTx(ctx context.Context, tx *gorm.DB, input ledger.ApplyInput) (*models.WalletTransaction, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams groups dependencies for the payment tracker.
type ServiceParams struct {
	Repository        Repository
	Ledger            walletLedger
	Stripe            StripePaymentsClient
	TransactionRunner txRunner
	Emitter           eventEmitter
	Logger            *logger.Logger
}

// Service tracks provider payments and credits tournament deposits.
type Service struct {
	repo     Repository
	ledger   walletLedger
	stripe   StripePaymentsClient
	txRunner txRunner
	emitter  eventEmitter
	logg     *logger.Logger
}

// CreatePaymentInput captures a new payment intent request.
type CreatePaymentInput struct {
	AmountCents        int64
	Currency           string
	Description        string
	Metadata           map[string]string
	PaymentMethodTypes []string
}

// CreatePaymentResult returns the pending payment and the secret the client
// uses to complete it.
type CreatePaymentResult struct {
	Payment      *models.Payment
	ClientSecret string
}

// RefundInput selects a payment and an optional partial amount.
type RefundInput struct {
	PaymentID   uuid.UUID
	AmountCents *int64
	Reason      string
}

// RefundResult reports the provider refund.
type RefundResult struct {
	RefundID    string
	AmountCents int64
	Status      string
	Payment     *models.Payment
}

// PaymentSucceededInput is the provider notification for a settled intent.
type PaymentSucceededInput struct {
	PaymentIntentID string
	PaymentMethod   string
	Metadata        map[string]string
}

// InvoicePaymentInput is a paid subscription invoice.
type InvoicePaymentInput struct {
	UserID          uuid.UUID
	InvoiceID       string
	SubscriptionID  string
	AmountPaidCents int64
	Currency        string
}

// PaymentMethodSummary is the card data exposed to clients.
type PaymentMethodSummary struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"expMonth"`
	ExpYear  int64  `json:"expYear"`
}

// NewService wires the payment tracker.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment repository required")
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
	return &Service{
		repo:     params.Repository,
		ledger:   params.Ledger,
		stripe:   params.Stripe,
		txRunner: params.TransactionRunner,
		emitter:  params.Emitter,
		logg:     params.Logger,
	}, nil
}

// EnsureCustomer returns the provider customer linked to the user's wallet,
// creating it on first use.
func (s *Service) EnsureCustomer(ctx context.Context, userID uuid.UUID) (string, error) {
	wallet, err := s.ledger.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return "", err
	}
	if wallet.ProviderCustomerID != nil && strings.TrimSpace(*wallet.ProviderCustomerID) != "" {
		return *wallet.ProviderCustomerID, nil
	}

	params := &stripe.CustomerParams{}
	params.AddMetadata("user_id", userID.String())
	cust, err := s.stripe.CreateCustomer(ctx, params)
	if err != nil {
		return "", pkgstripe.MapError(err, "create stripe customer")
	}
	if cust == nil || cust.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "stripe customer missing id")
	}
	if err := s.ledger.SetProviderCustomer(ctx, userID, cust.ID); err != nil {
		return "", err
	}
	return cust.ID, nil
}

// CreatePayment opens a provider payment intent and records it as pending.
// The wallet is not touched until the provider confirms the payment.
func (s *Service) CreatePayment(ctx context.Context, userID uuid.UUID, input CreatePaymentInput) (*CreatePaymentResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.AmountCents < MinPaymentCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be at least 50 cents").WithDetails(map[string]any{
			"minimum": MinPaymentCents,
		})
	}
	currency, err := enums.ParseCurrency(input.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency")
	}
	description := strings.TrimSpace(input.Description)
	if len(description) > maxDescriptionLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description must be at most 500 characters")
	}
	methodTypes := input.PaymentMethodTypes
	if len(methodTypes) == 0 {
		methodTypes = []string{cardMethodType}
	}

	customerID, err := s.EnsureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	callerMetadata := types.Metadata(input.Metadata).Clone()
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(input.AmountCents),
		Currency:           stripe.String(currency.Lower()),
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice(methodTypes),
	}
	if description != "" {
		params.Description = stripe.String(description)
	}
	for key, value := range callerMetadata.Merge(map[string]string{"user_id": userID.String()}) {
		params.AddMetadata(key, value)
	}

	intent, err := s.stripe.CreatePaymentIntent(ctx, params)
	if err != nil {
		return nil, pkgstripe.MapError(err, "create payment intent")
	}
	if intent == nil || intent.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment intent missing id")
	}

	intentID := intent.ID
	payment := &models.Payment{
		UserID:                  userID,
		AmountCents:             input.AmountCents,
		Currency:                currency,
		Status:                  enums.PaymentStatusPending,
		ProviderPaymentIntentID: &intentID,
		Description:             description,
		Metadata:                callerMetadata,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment")
	}

	s.info(ctx, "payment intent created", map[string]any{
		"payment_id":        payment.ID.String(),
		"payment_intent_id": intentID,
		"amount_cents":      payment.AmountCents,
	})
	return &CreatePaymentResult{Payment: payment, ClientSecret: intent.ClientSecret}, nil
}

// ConfirmPayment confirms the caller's intent with the provider and stores
// the resulting status. A succeeded confirmation credits tournament deposits
// the same way the webhook does.
func (s *Service) ConfirmPayment(ctx context.Context, userID uuid.UUID, paymentIntentID, paymentMethod string) (*models.Payment, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	paymentMethod = strings.TrimSpace(paymentMethod)
	if paymentIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_intent_id is required")
	}
	if paymentMethod == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_method is required")
	}

	payment, err := s.repo.FindByIntentID(ctx, paymentIntentID)
	if err != nil {
		return nil, notFoundOr(err, "load payment")
	}
	if payment.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}

	intent, err := s.stripe.ConfirmPaymentIntent(ctx, paymentIntentID, &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethod),
	})
	if err != nil {
		return nil, pkgstripe.MapError(err, "confirm payment intent")
	}
	status := enums.PaymentStatusFromProvider(string(intent.Status))

	var updated *models.Payment
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.repo.WithTx(tx).FindByIntentIDForUpdate(ctx, paymentIntentID)
		if err != nil {
			return notFoundOr(err, "lock payment")
		}
		switch status {
		case enums.PaymentStatusSucceeded:
			updated, err = s.markSucceeded(ctx, tx, locked, paymentMethod, intent.Metadata)
			return err
		case enums.PaymentStatusFailed:
			updated, err = s.markFailed(ctx, tx, locked)
			return err
		default:
			updated = locked
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// OnPaymentSucceeded handles the provider's succeeded notification.
// Redelivery never credits twice.
func (s *Service) OnPaymentSucceeded(ctx context.Context, input PaymentSucceededInput) error {
	intentID := strings.TrimSpace(input.PaymentIntentID)
	if intentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}

	untracked := false
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.repo.WithTx(tx).FindByIntentIDForUpdate(ctx, intentID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				untracked = true
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment")
		}
		_, err = s.markSucceeded(ctx, tx, locked, strings.TrimSpace(input.PaymentMethod), input.Metadata)
		return err
	})
	if ledger.IsDuplicateEntry(err) {
		s.info(ctx, "payment deposit already recorded", map[string]any{"payment_intent_id": intentID})
		return nil
	}
	if err != nil {
		return err
	}
	if untracked {
		s.warn(ctx, "payment intent not tracked; ignoring", map[string]any{"payment_intent_id": intentID})
	}
	return nil
}

// OnPaymentFailed moves a pending payment to failed. It has no ledger effect.
func (s *Service) OnPaymentFailed(ctx context.Context, paymentIntentID string) error {
	intentID := strings.TrimSpace(paymentIntentID)
	if intentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}

	untracked := false
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.repo.WithTx(tx).FindByIntentIDForUpdate(ctx, intentID)
		if err != nil {
			if dbpkg.IsNotFound(err) {
				untracked = true
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment")
		}
		_, err = s.markFailed(ctx, tx, locked)
		return err
	})
	if err != nil {
		return err
	}
	if untracked {
		s.warn(ctx, "payment intent not tracked; ignoring", map[string]any{"payment_intent_id": intentID})
	}
	return nil
}

// RefundPayment refunds a succeeded payment. A payment that was credited to
// the wallet is debited first, so a spent deposit cannot be refunded.
func (s *Service) RefundPayment(ctx context.Context, userID uuid.UUID, input RefundInput) (*RefundResult, error) {
	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_id is required")
	}
	if input.AmountCents != nil && *input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = defaultRefundReason
	}
	if _, ok := refundReasons[reason]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported refund reason")
	}

	var (
		result         *RefundResult
		issuedRefundID string
	)
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByIDForUpdate(ctx, input.PaymentID)
		if err != nil {
			return notFoundOr(err, "lock payment")
		}
		if payment.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		if payment.Status != enums.PaymentStatusSucceeded {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "only succeeded payments can be refunded").WithDetails(map[string]any{
				"status": payment.Status,
			})
		}
		if payment.ProviderPaymentIntentID == nil {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "payment has no refundable intent")
		}

		amount := payment.AmountCents
		if input.AmountCents != nil {
			if *input.AmountCents > payment.AmountCents {
				return pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds payment amount")
			}
			amount = *input.AmountCents
		}

		if payment.WalletCredited {
			refID := payment.ID
			refType := enums.ReferencePayment
			if _, err := s.ledger.ApplyTransactionWithTx(ctx, tx, ledger.ApplyInput{
				UserID:        payment.UserID,
				Type:          enums.WalletTransactionRefund,
				AmountCents:   -amount,
				Description:   refundDescription,
				ReferenceID:   &refID,
				ReferenceType: &refType,
				Actor:         outbox.UserActor(userID),
			}); err != nil {
				return err
			}
		}

		payment.Status = enums.PaymentStatusRefunded
		payment.RefundedAmountCents = amount
		if err := repo.Save(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
		}
		if err := s.emit(ctx, tx, enums.EventPaymentRefunded, payment, outbox.UserActor(userID)); err != nil {
			return err
		}

		// Provider call goes last; a retry after rollback replays the same refund.
		params := &stripe.RefundParams{
			PaymentIntent: stripe.String(*payment.ProviderPaymentIntentID),
			Amount:        stripe.Int64(amount),
			Reason:        stripe.String(reason),
		}
		params.SetIdempotencyKey(refundIdempotencyKey(payment.ID))
		rf, err := s.stripe.CreateRefund(ctx, params)
		if err != nil {
			return pkgstripe.MapError(err, "create refund")
		}
		if rf == nil || rf.ID == "" {
			return pkgerrors.New(pkgerrors.CodeDependency, "refund missing id")
		}
		issuedRefundID = rf.ID

		refundID := rf.ID
		payment.ProviderRefundID = &refundID
		if err := repo.Save(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record provider refund id")
		}

		refunded := rf.Amount
		if refunded == 0 {
			refunded = amount
		}
		result = &RefundResult{
			RefundID:    refundID,
			AmountCents: refunded,
			Status:      string(rf.Status),
			Payment:     payment,
		}
		return nil
	})
	if err != nil {
		if issuedRefundID != "" && s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"payment_id": input.PaymentID.String(),
				"refund_id":  issuedRefundID,
			})
			s.logg.Error(logCtx, "provider refund issued but local refund rolled back", err)
		}
		return nil, err
	}
	return result, nil
}

// History pages the user's payments, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Payment], error) {
	params = params.Normalize()
	rows, total, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return pagination.Page[models.Payment]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return pagination.NewPage(rows, total, params), nil
}

// RecordInvoicePayment stores a paid subscription invoice once. Zero-amount
// invoices (trials, fully discounted periods) are not recorded.
func (s *Service) RecordInvoicePayment(ctx context.Context, input InvoicePaymentInput) (*models.Payment, error) {
	invoiceID := strings.TrimSpace(input.InvoiceID)
	if invoiceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.AmountPaidCents <= 0 {
		return nil, nil
	}

	if existing, err := s.repo.FindByInvoiceID(ctx, invoiceID); err == nil {
		return existing, nil
	} else if !dbpkg.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice payment")
	}

	currency, err := enums.ParseCurrency(input.Currency)
	if err != nil {
		currency = enums.CurrencyUSD
	}
	method := invoicePaymentMethod
	metadata := types.Metadata{"invoice_id": invoiceID}
	if sub := strings.TrimSpace(input.SubscriptionID); sub != "" {
		metadata["subscription_id"] = sub
	}
	payment := &models.Payment{
		UserID:            input.UserID,
		AmountCents:       input.AmountPaidCents,
		Currency:          currency,
		Status:            enums.PaymentStatusSucceeded,
		PaymentMethod:     &method,
		ProviderInvoiceID: &invoiceID,
		Description:       invoiceDescription,
		Metadata:          metadata,
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, payment); err != nil {
			return err
		}
		return s.emit(ctx, tx, enums.EventPaymentSucceeded, payment, outbox.ProviderActor())
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			existing, findErr := s.repo.FindByInvoiceID(ctx, invoiceID)
			if findErr == nil {
				return existing, nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record invoice payment")
	}
	return payment, nil
}

// ListPaymentMethods returns the cards saved on the user's provider customer.
func (s *Service) ListPaymentMethods(ctx context.Context, userID uuid.UUID) ([]PaymentMethodSummary, error) {
	wallet, err := s.ledger.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet.ProviderCustomerID == nil || *wallet.ProviderCustomerID == "" {
		return []PaymentMethodSummary{}, nil
	}
	methods, err := s.listCards(ctx, *wallet.ProviderCustomerID)
	if err != nil {
		return nil, err
	}
	out := make([]PaymentMethodSummary, 0, len(methods))
	for _, pm := range methods {
		out = append(out, summarize(pm))
	}
	return out, nil
}

// AttachPaymentMethod saves a card on the user's provider customer.
func (s *Service) AttachPaymentMethod(ctx context.Context, userID uuid.UUID, paymentMethodID string) (*PaymentMethodSummary, error) {
	paymentMethodID = strings.TrimSpace(paymentMethodID)
	if paymentMethodID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_method_id is required")
	}
	customerID, err := s.EnsureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}
	pm, err := s.stripe.AttachPaymentMethod(ctx, paymentMethodID, &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	})
	if err != nil {
		return nil, pkgstripe.MapError(err, "attach payment method")
	}
	summary := summarize(pm)
	return &summary, nil
}

// DetachPaymentMethod removes a card the user owns.
func (s *Service) DetachPaymentMethod(ctx context.Context, userID uuid.UUID, paymentMethodID string) error {
	paymentMethodID = strings.TrimSpace(paymentMethodID)
	if paymentMethodID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment method id is required")
	}
	wallet, err := s.ledger.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return err
	}
	if wallet.ProviderCustomerID == nil || *wallet.ProviderCustomerID == "" {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment method not found")
	}
	methods, err := s.listCards(ctx, *wallet.ProviderCustomerID)
	if err != nil {
		return err
	}
	owned := false
	for _, pm := range methods {
		if pm != nil && pm.ID == paymentMethodID {
			owned = true
			break
		}
	}
	if !owned {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment method not found")
	}
	if _, err := s.stripe.DetachPaymentMethod(ctx, paymentMethodID, &stripe.PaymentMethodDetachParams{}); err != nil {
		return pkgstripe.MapError(err, "detach payment method")
	}
	return nil
}

func (s *Service) listCards(ctx context.Context, customerID string) ([]*stripe.PaymentMethod, error) {
	methods, err := s.stripe.ListPaymentMethods(ctx, &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(cardMethodType),
	})
	if err != nil {
		return nil, pkgstripe.MapError(err, "list payment methods")
	}
	return methods, nil
}

// markSucceeded applies the succeeded transition to a locked row and credits
// the deposit when the payment references a tournament.
func (s *Service) markSucceeded(ctx context.Context, tx *gorm.DB, payment *models.Payment, paymentMethod string, providerMetadata map[string]string) (*models.Payment, error) {
	if payment.Status == enums.PaymentStatusRefunded {
		return payment, nil
	}

	changed := false
	if payment.Status != enums.PaymentStatusSucceeded {
		payment.Status = enums.PaymentStatusSucceeded
		changed = true
	}
	if paymentMethod != "" && (payment.PaymentMethod == nil || *payment.PaymentMethod != paymentMethod) {
		payment.PaymentMethod = &paymentMethod
		changed = true
	}

	_, tournament := payment.Metadata.TournamentID()
	if !tournament {
		_, tournament = types.Metadata(providerMetadata).TournamentID()
	}
	if tournament && !payment.WalletCredited {
		refID := payment.ID
		refType := enums.ReferencePayment
		if _, err := s.ledger.ApplyTransactionWithTx(ctx, tx, ledger.ApplyInput{
			UserID:        payment.UserID,
			Type:          enums.WalletTransactionDeposit,
			AmountCents:   payment.AmountCents,
			Description:   depositDescription,
			ReferenceID:   &refID,
			ReferenceType: &refType,
			Actor:         outbox.ProviderActor(),
		}); err != nil {
			return nil, err
		}
		payment.WalletCredited = true
		changed = true
	}

	if !changed {
		return payment, nil
	}
	if err := s.repo.WithTx(tx).Save(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
	}
	if err := s.emit(ctx, tx, enums.EventPaymentSucceeded, payment, outbox.ProviderActor()); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *Service) markFailed(ctx context.Context, tx *gorm.DB, payment *models.Payment) (*models.Payment, error) {
	if payment.Status != enums.PaymentStatusPending {
		return payment, nil
	}
	payment.Status = enums.PaymentStatusFailed
	if err := s.repo.WithTx(tx).Save(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
	}
	if err := s.emit(ctx, tx, enums.EventPaymentFailed, payment, outbox.ProviderActor()); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payment *models.Payment, actor *outbox.ActorRef) error {
	if s.emitter == nil {
		return nil
	}
	tournamentID, _ := payment.Metadata.TournamentID()
	err := s.emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         actor,
		Data: payloads.PaymentStatusChanged{
			PaymentID:           payment.ID,
			UserID:              payment.UserID,
			Status:              payment.Status,
			AmountCents:         payment.AmountCents,
			Currency:            payment.Currency,
			RefundedAmountCents: payment.RefundedAmountCents,
			TournamentID:        tournamentID,
			WalletCredited:      payment.WalletCredited,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment event")
	}
	return nil
}

func refundIdempotencyKey(paymentID uuid.UUID) string {
	return "refund-" + paymentID.String()
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

func summarize(pm *stripe.PaymentMethod) PaymentMethodSummary {
	if pm == nil {
		return PaymentMethodSummary{}
	}
	summary := PaymentMethodSummary{ID: pm.ID}
	if pm.Card != nil {
		summary.Brand = string(pm.Card.Brand)
		summary.Last4 = pm.Card.Last4
		summary.ExpMonth = pm.Card.ExpMonth
		summary.ExpYear = pm.Card.ExpYear
	}
	return summary
}

func notFoundOr(err error, message string) error {
	if dbpkg.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
