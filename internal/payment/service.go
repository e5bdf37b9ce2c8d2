package payment

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrSignedTransaction is the only error Sign returns. The underlying cause
// is logged, not exposed.
var ErrSignedTransaction = errors.New("failed to create signed transaction")

// Service signs outgoing payments and verifies or settles incoming ones.
type Service struct {
	requirements *RequirementsBuilder
	facilitator  Facilitator
	logger       *logrus.Logger
	now          func() time.Time
}

func NewService(requirements *RequirementsBuilder, facilitator Facilitator, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		requirements: requirements,
		facilitator:  facilitator,
		logger:       logger,
		now:          time.Now,
	}
}

// BuildRequirements is rebuilt on every call; requirements are never cached.
func (s *Service) BuildRequirements(amount Decimal, paymentMethod, payTo string) (*PaymentRequirements, error) {
	return s.requirements.BuildRequirements(amount, paymentMethod, payTo)
}

// Sign produces a payment authorization for amount payable to recipient.
func (s *Service) Sign(amount Decimal, recipient, paymentMethod, privateKey string) (*SignedPaymentAuthorization, error) {
	header, err := s.signHeader(amount, recipient, paymentMethod, privateKey)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"amount":        amount.String(),
			"paymentMethod": paymentMethod,
			"recipient":     recipient,
		}).Errorf("Failed to create signed transaction: %v", err)
		return nil, ErrSignedTransaction
	}

	return &SignedPaymentAuthorization{
		SignedTransaction: header,
		PaymentMethod:     paymentMethod,
		Amount:            amount,
		RecipientAddress:  recipient,
	}, nil
}

func (s *Service) signHeader(amount Decimal, recipient, paymentMethod, privateKey string) (string, error) {
	key, err := ParsePrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	req, err := s.BuildRequirements(amount, paymentMethod, recipient)
	if err != nil {
		return "", err
	}
	payload, err := SignExactPayment(key, req, s.now())
	if err != nil {
		return "", err
	}
	return EncodeHeader(payload)
}

// Verify decodes the authorization header and asks the facilitator whether it
// satisfies the requirements.
func (s *Service) Verify(ctx context.Context, signedTransaction string, req *PaymentRequirements) *VerificationResult {
	payload, err := DecodePaymentHeader(signedTransaction)
	if err != nil {
		return &VerificationResult{
			Success: false,
			Message: "Invalid payment authorization",
			Error:   err.Error(),
		}
	}

	resp, err := s.facilitator.Verify(ctx, payload, req)
	if err != nil {
		s.logger.Warnf("Facilitator verify failed: %v", err)
		return &VerificationResult{
			Success: false,
			Message: "Payment verification failed",
			Payload: payload,
			Error:   err.Error(),
		}
	}

	payer := resp.Payer
	if payer == "" {
		payer = payload.Payload.Authorization.From
	}
	if !resp.IsValid {
		reason := resp.InvalidReason
		if reason == "" {
			reason = "payment rejected by facilitator"
		}
		return &VerificationResult{
			Success: false,
			Message: "Payment verification failed",
			Payload: payload,
			Payer:   payer,
			Error:   reason,
		}
	}

	return &VerificationResult{
		Success: true,
		Message: "Payment verified",
		Payload: payload,
		Payer:   payer,
	}
}

// Settle submits a verified payload for on-chain settlement.
func (s *Service) Settle(ctx context.Context, payload *PaymentPayload, req *PaymentRequirements) *VerificationResult {
	resp, err := s.facilitator.Settle(ctx, payload, req)
	if err != nil {
		s.logger.Warnf("Facilitator settle failed: %v", err)
		return &VerificationResult{
			Success: false,
			Message: "Payment settlement failed",
			Payload: payload,
			Error:   err.Error(),
		}
	}

	header, err := EncodeHeader(resp)
	if err != nil {
		return &VerificationResult{
			Success: false,
			Message: "Payment settlement failed",
			Payload: payload,
			Error:   err.Error(),
		}
	}

	if !resp.Success {
		reason := resp.ErrorReason
		if reason == "" {
			reason = "settlement rejected by facilitator"
		}
		return &VerificationResult{
			Success:        false,
			Message:        "Payment settlement failed",
			ResponseHeader: header,
			Payload:        payload,
			Payer:          resp.Payer,
			Error:          reason,
		}
	}

	return &VerificationResult{
		Success:        true,
		Message:        "Payment settled",
		ResponseHeader: header,
		Payload:        payload,
		Payer:          resp.Payer,
		Transaction:    resp.Transaction,
	}
}
