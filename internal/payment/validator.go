package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/praxis/praxis-marketplace-gateway/internal/bus"
	"github.com/praxis/praxis-marketplace-gateway/internal/store"
	"github.com/sirupsen/logrus"
)

// PaymentValidationRequest is what a seller submits to have a buyer's
// authorization verified and settled.
type PaymentValidationRequest struct {
	TransactionHash   string  `json:"transactionHash"`
	SignedTransaction string  `json:"signedTransaction"`
	Amount            Decimal `json:"amount"`
	PaymentMethod     string  `json:"paymentMethod"`
	RecipientAddress  string  `json:"recipientAddress"`
}

// Validate reports the first missing or malformed field.
func (r *PaymentValidationRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.TransactionHash) == "":
		return errors.New("transactionHash is required")
	case strings.TrimSpace(r.SignedTransaction) == "":
		return errors.New("signedTransaction is required")
	case r.Amount == "":
		return errors.New("amount is required")
	case !r.Amount.IsValidPrice():
		return fmt.Errorf("invalid amount: %s", r.Amount)
	case strings.TrimSpace(r.PaymentMethod) == "":
		return errors.New("paymentMethod is required")
	case strings.TrimSpace(r.RecipientAddress) == "":
		return errors.New("recipientAddress is required")
	}
	return nil
}

// ValidationOutcome reports the final state of one validation attempt.
type ValidationOutcome struct {
	Success        bool                     `json:"success"`
	Status         store.Status             `json:"status"`
	Message        string                   `json:"message"`
	Error          string                   `json:"error,omitempty"`
	ResponseHeader string                   `json:"responseHeader,omitempty"`
	Record         *store.TransactionRecord `json:"record,omitempty"`
}

// ValidationRecorder receives the final status of each validation.
type ValidationRecorder interface {
	RecordPaymentValidation(status string)
}

// Validator drives a transaction record from PENDING to COMPLETED or FAILED.
type Validator struct {
	service  *Service
	store    store.Store
	events   *bus.EventBus
	recorder ValidationRecorder
	logger   *logrus.Logger
}

func NewValidator(service *Service, st store.Store, events *bus.EventBus, recorder ValidationRecorder, logger *logrus.Logger) *Validator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Validator{
		service:  service,
		store:    st,
		events:   events,
		recorder: recorder,
		logger:   logger,
	}
}

// ValidateAndSettle verifies the authorization and settles it only when
// verification succeeds. A hash that was already processed returns the
// existing record without another facilitator call.
func (v *Validator) ValidateAndSettle(ctx context.Context, req PaymentValidationRequest) *ValidationOutcome {
	if err := req.Validate(); err != nil {
		return &ValidationOutcome{
			Success: false,
			Message: "Invalid payment validation request",
			Error:   err.Error(),
		}
	}

	log := v.logger.WithField("transactionHash", req.TransactionHash)

	rec := &store.TransactionRecord{
		ID:               uuid.New().String(),
		TransactionHash:  req.TransactionHash,
		Status:           store.StatusPending,
		Amount:           req.Amount.String(),
		PaymentMethod:    req.PaymentMethod,
		RecipientAddress: req.RecipientAddress,
	}
	if err := v.store.Create(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return v.existing(ctx, req.TransactionHash)
		}
		log.Errorf("Failed to record transaction: %v", err)
		return &ValidationOutcome{
			Success: false,
			Message: "Failed to record transaction",
			Error:   err.Error(),
		}
	}
	log.Info("Payment validation started")

	requirements, err := v.service.BuildRequirements(req.Amount, req.PaymentMethod, req.RecipientAddress)
	if err != nil {
		return v.fail(ctx, req.TransactionHash, "", "Invalid payment requirements", err.Error())
	}

	verification := v.service.Verify(ctx, req.SignedTransaction, requirements)
	if !verification.Success {
		return v.fail(ctx, req.TransactionHash, verification.Payer, verification.Message, verification.Error)
	}

	fromAddress := verification.Payer
	settlement := v.service.Settle(ctx, verification.Payload, requirements)
	if !settlement.Success {
		outcome := v.fail(ctx, req.TransactionHash, fromAddress, settlement.Message, settlement.Error)
		outcome.ResponseHeader = settlement.ResponseHeader
		return outcome
	}

	updated, err := v.store.Transition(ctx, req.TransactionHash, store.StatusCompleted, store.Update{
		FromAddress:  fromAddress,
		SettlementTx: settlement.Transaction,
	})
	if err != nil {
		log.Errorf("Failed to complete transaction record: %v", err)
		return &ValidationOutcome{
			Success:        false,
			Status:         store.StatusPending,
			Message:        "Payment settled but record update failed",
			Error:          err.Error(),
			ResponseHeader: settlement.ResponseHeader,
		}
	}

	log.WithFields(logrus.Fields{
		"from":       fromAddress,
		"settlement": settlement.Transaction,
	}).Info("Payment settled")
	v.report(updated)

	return &ValidationOutcome{
		Success:        true,
		Status:         store.StatusCompleted,
		Message:        settlement.Message,
		ResponseHeader: settlement.ResponseHeader,
		Record:         updated,
	}
}

func (v *Validator) fail(ctx context.Context, hash, fromAddress, message, reason string) *ValidationOutcome {
	if reason == "" {
		reason = message
	}
	updated, err := v.store.Transition(ctx, hash, store.StatusFailed, store.Update{
		FromAddress: fromAddress,
		Error:       reason,
	})
	if err != nil {
		v.logger.WithField("transactionHash", hash).Errorf("Failed to mark transaction failed: %v", err)
	} else {
		v.report(updated)
	}
	v.logger.WithField("transactionHash", hash).Warnf("%s: %s", message, reason)

	return &ValidationOutcome{
		Success: false,
		Status:  store.StatusFailed,
		Message: message,
		Error:   reason,
		Record:  updated,
	}
}

func (v *Validator) existing(ctx context.Context, hash string) *ValidationOutcome {
	rec, err := v.store.Get(ctx, hash)
	if err != nil {
		return &ValidationOutcome{
			Success: false,
			Message: "Failed to load transaction",
			Error:   err.Error(),
		}
	}
	return &ValidationOutcome{
		Success: rec.Status == store.StatusCompleted,
		Status:  rec.Status,
		Message: fmt.Sprintf("Transaction already processed with status %s", rec.Status),
		Error:   rec.Error,
		Record:  rec,
	}
}

func (v *Validator) report(rec *store.TransactionRecord) {
	if v.recorder != nil {
		v.recorder.RecordPaymentValidation(string(rec.Status))
	}
	if v.events != nil {
		v.events.PublishPaymentValidated(rec.TransactionHash, string(rec.Status), rec.FromAddress)
	}
}

// Transaction returns the stored record for a hash.
func (v *Validator) Transaction(ctx context.Context, hash string) (*store.TransactionRecord, error) {
	return v.store.Get(ctx, hash)
}

// Transactions lists recent records, newest first.
func (v *Validator) Transactions(ctx context.Context, limit int) ([]store.TransactionRecord, error) {
	return v.store.List(ctx, limit)
}
