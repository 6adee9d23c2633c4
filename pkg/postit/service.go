package postit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Intake carries the wizard answers a post is generated from.
type Intake struct {
	Notes    string
	Audience string
	Intent   string
	Context  string
	Keywords string
	Language LanguageCode
}

// RewriteRequest asks the generator for a variant of an existing post.
type RewriteRequest struct {
	Text           string
	Option         OptionKey
	Tone           string
	TargetLanguage LanguageCode
}

// TextGenerator is the opaque LLM collaborator. Calls happen outside the
// store transaction; billing is committed first.
type TextGenerator interface {
	GeneratePost(ctx context.Context, intake Intake) (string, error)
	Rewrite(ctx context.Context, request RewriteRequest) (string, error)
	Hashtags(ctx context.Context, text string) ([]string, error)
}

// ProviderPayment is the provider's view of one payment.
type ProviderPayment struct {
	ID          string
	Status      string
	CheckoutURL string
	UserID      string
	Coins       Coins
}

// CreatePaymentRequest describes a checkout to open with the provider.
type CreatePaymentRequest struct {
	UserID      string
	Coins       Coins
	AmountCents int64
	Description string
	ReturnTo    string
}

// PaymentProvider is the opaque checkout/payment collaborator.
type PaymentProvider interface {
	CreatePayment(ctx context.Context, request CreatePaymentRequest) (ProviderPayment, error)
	GetPayment(ctx context.Context, paymentID string) (ProviderPayment, error)
}

// ActionOutcome is the canonical JSON body of a mutating operation. Replayed
// outcomes carry the previously cached bytes verbatim.
type ActionOutcome struct {
	Payload  json.RawMessage
	Replayed bool
}

// Service contains the coin-ledger and cycle domain logic over a Store.
type Service struct {
	store     Store
	generator TextGenerator
	provider  PaymentProvider
	nowFn     func() time.Time
	idFn      func() string
	logger    OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, idFn: uuid.NewString}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Profile is the bootstrap view of an account.
type Profile struct {
	ProfileID        string `json:"profile_id"`
	PrimaryLanguage  string `json:"primary_language"`
	Coins            Coins  `json:"coins"`
	LastFreePostDate string `json:"last_free_post_date,omitempty"`
	CreatedAt        string `json:"created_at"`
}

// BootstrapResult is returned by Bootstrap.
type BootstrapResult struct {
	OK      bool    `json:"ok"`
	Profile Profile `json:"profile"`
}

// Bootstrap creates the account on first sight and returns the profile.
func (service *Service) Bootstrap(ctx context.Context, userID UserID, language LanguageCode) (*BootstrapResult, error) {
	var result *BootstrapResult
	operationError := service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		now := service.nowFn()
		account := state.EnsureAccount(userID, language, now)
		profile := Profile{
			ProfileID:       account.UserID,
			PrimaryLanguage: account.PrimaryLanguage,
			Coins:           account.Coins,
			CreatedAt:       time.Unix(account.CreatedUnixUTC, 0).UTC().Format(time.RFC3339),
		}
		if account.LastFreePostUnixUTC != 0 {
			profile.LastFreePostDate = DayKeyFor(time.Unix(account.LastFreePostUnixUTC, 0))
		}
		result = &BootstrapResult{OK: true, Profile: profile}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationBootstrap,
		UserID:    userID,
		Error:     operationError,
	})
	if operationError != nil {
		return nil, operationError
	}
	return result, nil
}

// LanguageResult is returned by SetPrimaryLanguage.
type LanguageResult struct {
	OK              bool   `json:"ok"`
	PrimaryLanguage string `json:"primaryLanguage"`
	Cost            Coins  `json:"cost"`
	CoinsLeft       Coins  `json:"coinsLeft"`
}

// SetPrimaryLanguage switches the profile's default output language.
// An actual change costs LanguageSurcharge coins; a no-op change is free.
func (service *Service) SetPrimaryLanguage(ctx context.Context, userID UserID, target LanguageCode) (*LanguageResult, error) {
	var result *LanguageResult
	operationError := service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		now := service.nowFn()
		account := state.EnsureAccount(userID, "", now)
		if account.PrimaryLanguage == string(target) {
			result = &LanguageResult{OK: true, PrimaryLanguage: account.PrimaryLanguage, Cost: 0, CoinsLeft: account.Coins}
			return nil
		}
		if account.Coins < LanguageSurcharge {
			return InsufficientCoinsError{Coins: account.Coins, Required: LanguageSurcharge}
		}
		account.Coins -= LanguageSurcharge
		account.PrimaryLanguage = string(target)
		result = &LanguageResult{OK: true, PrimaryLanguage: account.PrimaryLanguage, Cost: LanguageSurcharge, CoinsLeft: account.Coins}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationSetLanguage,
		UserID:    userID,
		Error:     operationError,
	})
	if operationError != nil {
		return nil, operationError
	}
	return result, nil
}

// StatusResult is the per-user dashboard view.
type StatusResult struct {
	OK                  bool   `json:"ok"`
	Coins               Coins  `json:"coins"`
	Confirmed           bool   `json:"confirmed"`
	ConfirmedPostID     string `json:"confirmedPostId,omitempty"`
	PostNumNext         int    `json:"postNumNext"`
	DaySlotUsed         bool   `json:"daySlotUsed"`
	CostToStart         Coins  `json:"costToStart"`
	ExtraGenerationCost Coins  `json:"extraGenerationCost"`
	PaymentReconciled   bool   `json:"paymentReconciled"`
}

// Status reports balance and cycle progress. When paymentID is non-empty the
// matching payment is reconciled first; otherwise pending payments for the
// user are swept.
func (service *Service) Status(ctx context.Context, userID UserID, paymentID string, snapshot *Snapshot) (*StatusResult, error) {
	reconciled := false
	if paymentID != "" {
		credited, err := service.ReconcileByPaymentID(ctx, userID, paymentID)
		if err == nil {
			reconciled = credited
		}
	} else if service.provider != nil {
		credited, err := service.ReconcilePendingForUser(ctx, userID)
		if err == nil {
			reconciled = credited
		}
	}

	var result *StatusResult
	operationError := service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		now := service.nowFn()
		account := state.EnsureAccount(userID, "", now)
		state.MergeSnapshot(snapshot, now)
		cycle := state.ActiveCycle(userID, now)
		slotFree := FreeSlotAvailable(account, now)
		result = &StatusResult{
			OK:                  true,
			Coins:               account.Coins,
			PostNumNext:         account.PostCountToday + 1,
			DaySlotUsed:         !slotFree,
			CostToStart:         startCost(slotFree),
			ExtraGenerationCost: LanguageSurcharge,
			PaymentReconciled:   reconciled,
		}
		if cycle != nil {
			result.Confirmed = cycle.Confirmed
			result.ConfirmedPostID = cycle.ConfirmedPostID
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationStatus,
		UserID:    userID,
		Error:     operationError,
	})
	if operationError != nil {
		return nil, operationError
	}
	return result, nil
}

// StartResult is returned by Start.
type StartResult struct {
	OK          bool  `json:"ok"`
	PostNumber  int   `json:"postNumber"`
	CostToStart Coins `json:"costToStart"`
	DaySlotUsed bool  `json:"daySlotUsed"`
	CoinsLeft   Coins `json:"coinsLeft"`
}

// Start opens today's cycle, debiting the start cost when the free window is
// consumed. Starting while an unconfirmed cycle is open returns that cycle
// without charging again; starting after a confirm opens a fresh cycle.
func (service *Service) Start(ctx context.Context, userID UserID, snapshot *Snapshot) (*StartResult, error) {
	var result *StartResult
	operationError := service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		now := service.nowFn()
		account := state.EnsureAccount(userID, "", now)
		state.MergeSnapshot(snapshot, now)
		cycle := state.ActiveCycle(userID, now)
		slotFree := FreeSlotAvailable(account, now)
		if cycle != nil && !cycle.Confirmed {
			result = &StartResult{
				OK:          true,
				PostNumber:  cycle.PostNumber,
				CostToStart: cycle.StartCostCharged,
				DaySlotUsed: !slotFree,
				CoinsLeft:   account.Coins,
			}
			return nil
		}
		cost := startCost(slotFree)
		if account.Coins < cost {
			return InsufficientCoinsError{Coins: account.Coins, Required: cost}
		}
		account.Coins -= cost
		fresh := NewCycle(service.idFn(), userID, account.PostCountToday+1, now)
		fresh.StartCostCharged = cost
		state.Cycles[userID.String()] = fresh
		result = &StartResult{
			OK:          true,
			PostNumber:  fresh.PostNumber,
			CostToStart: cost,
			DaySlotUsed: !slotFree,
			CoinsLeft:   account.Coins,
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationStart,
		UserID:    userID,
		Error:     operationError,
	})
	if operationError != nil {
		return nil, operationError
	}
	return result, nil
}

// ConfirmResult is returned by Confirm.
type ConfirmResult struct {
	OK              bool   `json:"ok"`
	PostID          string `json:"postId"`
	ConfirmedPostID string `json:"confirmedPostId"`
	PostCountToday  int    `json:"postCountToday"`
	CoinsLeft       Coins  `json:"coinsLeft"`
	Cost            Coins  `json:"cost"`
}

// Confirm fixes one generated post as today's official post. Confirming the
// same post again succeeds without re-debiting; confirming a different post
// conflicts. A cycle whose start already paid is never charged twice; a
// genuinely free confirm stamps the free-window timestamp.
func (service *Service) Confirm(ctx context.Context, userID UserID, postID PostID, snapshot *Snapshot) (*ConfirmResult, error) {
	var result *ConfirmResult
	operationError := service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		now := service.nowFn()
		account := state.EnsureAccount(userID, "", now)
		state.MergeSnapshot(snapshot, now)
		cycle := state.ActiveCycle(userID, now)
		if cycle == nil {
			return ErrNoActiveCycle
		}
		if cycle.Confirmed {
			if cycle.ConfirmedPostID != postID.String() {
				return ErrConfirmConflict
			}
			result = &ConfirmResult{
				OK:              true,
				PostID:          postID.String(),
				ConfirmedPostID: cycle.ConfirmedPostID,
				PostCountToday:  account.PostCountToday,
				CoinsLeft:       account.Coins,
				Cost:            0,
			}
			return nil
		}
		if cycle.ItemByID(postID) == nil {
			return ErrUnknownPost
		}
		slotFree := FreeSlotAvailable(account, now)
		var cost Coins
		if cycle.StartCostCharged == 0 {
			cost = startCost(slotFree)
		}
		if account.Coins < cost {
			return InsufficientCoinsError{Coins: account.Coins, Required: cost}
		}
		account.Coins -= cost
		cycle.Confirmed = true
		cycle.ConfirmedPostID = postID.String()
		cycle.ConfirmedWasFree = cycle.StartCostCharged == 0 && cost == 0 && slotFree
		if cycle.ConfirmedWasFree {
			account.LastFreePostUnixUTC = now.UTC().Unix()
		}
		account.PostCountToday++
		result = &ConfirmResult{
			OK:              true,
			PostID:          postID.String(),
			ConfirmedPostID: cycle.ConfirmedPostID,
			PostCountToday:  account.PostCountToday,
			CoinsLeft:       account.Coins,
			Cost:            cost,
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationConfirm,
		UserID:    userID,
		PostID:    postID.String(),
		Error:     operationError,
	})
	if operationError != nil {
		return nil, operationError
	}
	return result, nil
}

// CurrentSnapshot captures the account and cycle for state-cookie emission.
func (service *Service) CurrentSnapshot(ctx context.Context, userID UserID) (*Snapshot, error) {
	var snapshot *Snapshot
	err := service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		now := service.nowFn()
		account := state.EnsureAccount(userID, "", now)
		captured := BuildSnapshot(account, state.ActiveCycle(userID, now), now)
		snapshot = &captured
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func startCost(slotFree bool) Coins {
	if slotFree {
		return 0
	}
	return StartCost
}

func (service *Service) marshalPayload(value any) (json.RawMessage, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, WrapError("service", "payload", "encode", err)
	}
	return payload, nil
}
