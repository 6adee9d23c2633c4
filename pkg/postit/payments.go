package postit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// CheckoutResult is returned by Checkout.
type CheckoutResult struct {
	OK          bool   `json:"ok"`
	ID          string `json:"id,omitempty"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
	Simulated   bool   `json:"simulated,omitempty"`
	CoinsLeft   Coins  `json:"coinsLeft,omitempty"`
}

// Checkout opens a provider payment for a coin bundle. Without a configured
// provider the bundle is credited immediately as a simulated purchase.
func (service *Service) Checkout(ctx context.Context, userID UserID, bundleCoins Coins, returnTo string) (*CheckoutResult, error) {
	bundle, err := BundleFor(bundleCoins)
	if err != nil {
		return nil, err
	}

	if service.provider == nil {
		var result *CheckoutResult
		operationError := service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
			now := service.nowFn()
			account := state.EnsureAccount(userID, "", now)
			paymentID := simulatedPaymentID(service.idFn())
			account.Coins += bundle.Coins
			state.Payments[paymentID] = &PaymentRecord{
				ID:             paymentID,
				UserID:         userID.String(),
				Coins:          bundle.Coins,
				Status:         paymentStatusPaid,
				Credited:       true,
				CreatedUnixUTC: now.UTC().Unix(),
			}
			result = &CheckoutResult{OK: true, ID: paymentID, Simulated: true, CoinsLeft: account.Coins}
			return nil
		})
		service.logOperation(ctx, OperationLog{Operation: operationCheckout, UserID: userID, Error: operationError})
		if operationError != nil {
			return nil, operationError
		}
		return result, nil
	}

	payment, err := service.provider.CreatePayment(ctx, CreatePaymentRequest{
		UserID:      userID.String(),
		Coins:       bundle.Coins,
		AmountCents: bundle.PriceCents,
		Description: fmt.Sprintf("%d coins", bundle.Coins),
		ReturnTo:    returnTo,
	})
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationCheckout, UserID: userID, Error: err})
		return nil, WrapError("service", "checkout", "create_payment", err)
	}
	operationError := service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		now := service.nowFn()
		state.EnsureAccount(userID, "", now)
		status := payment.Status
		if status == "" {
			status = paymentStatusPending
		}
		state.Payments[payment.ID] = &PaymentRecord{
			ID:             payment.ID,
			UserID:         userID.String(),
			Coins:          bundle.Coins,
			Status:         status,
			CreatedUnixUTC: now.UTC().Unix(),
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationCheckout, UserID: userID, Error: operationError})
	if operationError != nil {
		return nil, operationError
	}
	return &CheckoutResult{OK: true, ID: payment.ID, CheckoutURL: payment.CheckoutURL}, nil
}

// ReconcileByPaymentID fetches the provider status for one payment and
// credits it if paid and not yet credited. Calling it again for an already
// credited payment is a no-op.
func (service *Service) ReconcileByPaymentID(ctx context.Context, userID UserID, paymentID string) (bool, error) {
	normalizedID, err := ValidatePaymentID(paymentID)
	if err != nil {
		return false, err
	}
	if service.provider == nil {
		return false, ErrProviderUnavailable
	}
	payment, err := service.provider.GetPayment(ctx, normalizedID)
	if err != nil {
		return false, WrapError("service", "reconcile", "get_payment", err)
	}
	if payment.UserID != "" && payment.UserID != userID.String() {
		return false, ErrPaymentUserMismatch
	}
	credited := false
	operationError := service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		credited = state.applyPaymentCredit(payment, service.nowFn())
		return nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationReconcile, UserID: userID, Error: operationError})
	if operationError != nil {
		return false, operationError
	}
	return credited, nil
}

// ReconcilePendingForUser sweeps the most recent uncredited payments for the
// user and applies the same check-then-credit logic to each.
func (service *Service) ReconcilePendingForUser(ctx context.Context, userID UserID) (bool, error) {
	if service.provider == nil {
		return false, ErrProviderUnavailable
	}
	var pendingIDs []string
	err := service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		var records []*PaymentRecord
		for _, record := range state.Payments {
			if record.UserID == userID.String() && !record.Credited {
				records = append(records, record)
			}
		}
		sort.Slice(records, func(left, right int) bool {
			return records[left].CreatedUnixUTC > records[right].CreatedUnixUTC
		})
		if len(records) > reconcileSweepLimit {
			records = records[:reconcileSweepLimit]
		}
		for _, record := range records {
			pendingIDs = append(pendingIDs, record.ID)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if len(pendingIDs) == 0 {
		return false, nil
	}

	payments := make([]ProviderPayment, 0, len(pendingIDs))
	for _, pendingID := range pendingIDs {
		payment, getErr := service.provider.GetPayment(ctx, pendingID)
		if getErr != nil {
			continue
		}
		payments = append(payments, payment)
	}

	anyCredited := false
	operationError := service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		now := service.nowFn()
		for _, payment := range payments {
			if state.applyPaymentCredit(payment, now) {
				anyCredited = true
			}
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationReconcileSweep, UserID: userID, Error: operationError})
	if operationError != nil {
		return false, operationError
	}
	return anyCredited, nil
}

// HandleWebhook processes the provider's asynchronous callback. It shares the
// check-then-credit gate with on-demand reconciliation, so whichever path
// fires first wins and the other becomes a no-op.
func (service *Service) HandleWebhook(ctx context.Context, paymentID string) error {
	normalizedID, err := ValidatePaymentID(paymentID)
	if err != nil {
		return err
	}
	if service.provider == nil {
		return ErrProviderUnavailable
	}
	payment, err := service.provider.GetPayment(ctx, normalizedID)
	if err != nil {
		return WrapError("service", "webhook", "get_payment", err)
	}
	operationError := service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		state.applyPaymentCredit(payment, service.nowFn())
		return nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationWebhook, Error: operationError})
	return operationError
}

// GrantResult is returned by GrantCoins.
type GrantResult struct {
	OK        bool  `json:"ok"`
	Granted   Coins `json:"granted"`
	CoinsLeft Coins `json:"coinsLeft"`
}

// GrantCoins credits coins manually (admin path).
func (service *Service) GrantCoins(ctx context.Context, userID UserID, amount Coins) (*GrantResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: must be greater than zero", ErrInvalidGrantAmount)
	}
	var result *GrantResult
	operationError := service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		account := state.EnsureAccount(userID, "", service.nowFn())
		account.Coins += amount
		result = &GrantResult{OK: true, Granted: amount, CoinsLeft: account.Coins}
		return nil
	})
	service.logOperation(ctx, OperationLog{Operation: operationGrant, UserID: userID, Error: operationError})
	if operationError != nil {
		return nil, operationError
	}
	return result, nil
}

// applyPaymentCredit updates the local record from the provider view and
// credits the account when the payment is paid and not yet credited.
// The credited flag transitions false to true at most once.
func (state *State) applyPaymentCredit(payment ProviderPayment, now time.Time) bool {
	record := state.Payments[payment.ID]
	if record == nil {
		if payment.UserID == "" {
			return false
		}
		record = &PaymentRecord{
			ID:             payment.ID,
			UserID:         payment.UserID,
			Coins:          payment.Coins,
			CreatedUnixUTC: now.UTC().Unix(),
		}
		state.Payments[payment.ID] = record
	}
	if record.Coins == 0 && payment.Coins > 0 {
		record.Coins = payment.Coins
	}
	record.Status = payment.Status
	if payment.Status != paymentStatusPaid || record.Credited {
		return false
	}
	ownerID, err := NewUserID(record.UserID)
	if err != nil {
		return false
	}
	account := state.EnsureAccount(ownerID, "", now)
	account.Coins += record.Coins
	record.Credited = true
	return true
}

func simulatedPaymentID(seed string) string {
	return "tr_" + paymentProviderSimulated + strings.ReplaceAll(seed, "-", "")
}
