package postit

import "context"

// GenerateRequest asks for one LLM generation within today's cycle.
type GenerateRequest struct {
	UserID   UserID
	ActionID *ActionID
	Snapshot *Snapshot
	Intake   Intake
}

// GeneratePayload is the response body of a generation.
type GeneratePayload struct {
	OK                   bool   `json:"ok"`
	Post                 string `json:"post"`
	PostID               string `json:"postId"`
	Cost                 Coins  `json:"cost"`
	CoinsLeft            Coins  `json:"coinsLeft"`
	PrimaryLanguage      string `json:"primaryLanguage"`
	OutputLanguage       string `json:"outputLanguage"`
	RegenerateCount      int    `json:"regenerateCount"`
	RegeneratesRemaining int    `json:"regeneratesRemaining"`
}

// Generate runs one generation. Billing is validated and committed in a first
// transaction, the LLM is called outside the lock, and the produced item plus
// the idempotency record are committed in a second transaction. A cycle is
// created lazily when none is open; lazy cycles defer the start cost to
// confirm time.
func (service *Service) Generate(ctx context.Context, request GenerateRequest) (*ActionOutcome, error) {
	if service.generator == nil {
		return nil, ErrGeneratorUnavailable
	}
	var (
		outcome        *ActionOutcome
		cost           Coins
		coinsAfter     Coins
		outputLanguage LanguageCode
	)
	operationError := service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		now := service.nowFn()
		account := state.EnsureAccount(request.UserID, "", now)
		state.MergeSnapshot(request.Snapshot, now)
		cycle := state.ActiveCycle(request.UserID, now)
		if request.ActionID != nil && cycle != nil {
			if payload, cached := cycle.CachedAction(*request.ActionID); cached {
				outcome = &ActionOutcome{Payload: payload, Replayed: true}
				return nil
			}
		}
		if cycle == nil {
			cycle = NewCycle(service.idFn(), request.UserID, account.PostCountToday+1, now)
			state.Cycles[request.UserID.String()] = cycle
		}
		if cycle.Confirmed {
			return ErrCycleConfirmed
		}
		if cycle.GenerationIndex >= generationCap {
			return ErrGenerationCapReached
		}
		outputLanguage = request.Intake.Language
		if outputLanguage == "" {
			outputLanguage = LanguageCode(account.PrimaryLanguage)
		}
		cost = 0
		if string(outputLanguage) != account.PrimaryLanguage {
			cost = LanguageSurcharge
		}
		if account.Coins < cost {
			return InsufficientCoinsError{Coins: account.Coins, Required: cost}
		}
		account.Coins -= cost
		coinsAfter = account.Coins
		cycle.GenerationIndex++
		return nil
	})
	if operationError != nil {
		service.logGenerate(ctx, request, cost, coinsAfter, false, operationError)
		return nil, operationError
	}
	if outcome != nil {
		service.logGenerate(ctx, request, 0, coinsAfter, true, nil)
		return outcome, nil
	}

	intake := request.Intake
	intake.Language = outputLanguage
	text, generationError := service.generator.GeneratePost(ctx, intake)
	if generationError != nil {
		// The debit stays committed; the caller reports cost and balance.
		chargedError := ChargedCallError{Cost: cost, CoinsLeft: coinsAfter, Err: generationError}
		service.logGenerate(ctx, request, cost, coinsAfter, false, chargedError)
		return nil, chargedError
	}

	operationError = service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		now := service.nowFn()
		account := state.EnsureAccount(request.UserID, "", now)
		cycle := state.ActiveCycle(request.UserID, now)
		if cycle == nil {
			cycle = NewCycle(service.idFn(), request.UserID, account.PostCountToday+1, now)
			cycle.GenerationIndex = 1
			state.Cycles[request.UserID.String()] = cycle
		}
		item := GeneratedItem{
			ID:             service.idFn(),
			Text:           text,
			CreatedUnixUTC: now.UTC().Unix(),
		}
		cycle.AppendItem(item)
		payload, err := service.marshalPayload(GeneratePayload{
			OK:                   true,
			Post:                 text,
			PostID:               item.ID,
			Cost:                 cost,
			CoinsLeft:            account.Coins,
			PrimaryLanguage:      account.PrimaryLanguage,
			OutputLanguage:       string(outputLanguage),
			RegenerateCount:      cycle.RegenerateCount,
			RegeneratesRemaining: regenerateCap - cycle.RegenerateCount,
		})
		if err != nil {
			return err
		}
		if request.ActionID != nil {
			cycle.RecordAction(*request.ActionID, payload, now)
		}
		outcome = &ActionOutcome{Payload: payload}
		return nil
	})
	service.logGenerate(ctx, request, cost, coinsAfter, false, operationError)
	if operationError != nil {
		return nil, operationError
	}
	return outcome, nil
}

// OptionRequest applies a billable option to the confirmed post.
type OptionRequest struct {
	UserID         UserID
	PostID         PostID
	Option         OptionKey
	Text           string
	Tone           string
	TargetLanguage LanguageCode
	ActionID       *ActionID
	Snapshot       *Snapshot
}

// OptionPayload is the response body of an applied option.
type OptionPayload struct {
	OK        bool     `json:"ok"`
	PostID    string   `json:"postId"`
	Post      string   `json:"post,omitempty"`
	Hashtags  []string `json:"hashtags,omitempty"`
	Cost      Coins    `json:"cost"`
	CoinsLeft Coins    `json:"coinsLeft"`
}

// ApplyOption bills and executes one post option (tone, rephrase,
// regenerate, hashtags, language) against the confirmed post. Regenerate is
// capped separately; tone, rephrase, and language share the variant cap.
func (service *Service) ApplyOption(ctx context.Context, request OptionRequest) (*ActionOutcome, error) {
	if service.generator == nil {
		return nil, ErrGeneratorUnavailable
	}
	cost, costErr := CostForOption(request.Option)
	if costErr != nil || request.Option == OptionDownload {
		return nil, ErrUnknownOption
	}
	var (
		outcome    *ActionOutcome
		coinsAfter Coins
		sourceText string
	)
	operationError := service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		now := service.nowFn()
		account := state.EnsureAccount(request.UserID, "", now)
		state.MergeSnapshot(request.Snapshot, now)
		cycle := state.ActiveCycle(request.UserID, now)
		if cycle == nil || !cycle.Confirmed {
			return ErrConfirmRequired
		}
		if request.ActionID != nil {
			if payload, cached := cycle.CachedAction(*request.ActionID); cached {
				outcome = &ActionOutcome{Payload: payload, Replayed: true}
				return nil
			}
		}
		if cycle.ConfirmedPostID != request.PostID.String() {
			return ErrUnknownPost
		}
		switch request.Option {
		case OptionRegenerate:
			if cycle.RegenerateCount >= regenerateCap {
				return ErrRegenerateCapReached
			}
		case OptionTone, OptionRephrase, OptionLanguage:
			if cycle.OptionVariantCount >= optionVariantCap {
				return ErrVariantCapReached
			}
		}
		if account.Coins < cost {
			return InsufficientCoinsError{Coins: account.Coins, Required: cost}
		}
		account.Coins -= cost
		coinsAfter = account.Coins
		switch request.Option {
		case OptionRegenerate:
			cycle.RegenerateCount++
		case OptionTone, OptionRephrase, OptionLanguage:
			cycle.OptionVariantCount++
		}
		sourceText = request.Text
		if sourceText == "" {
			if item := cycle.ItemByID(request.PostID); item != nil {
				sourceText = item.Text
			}
		}
		return nil
	})
	if operationError != nil {
		service.logOption(ctx, request, cost, coinsAfter, false, operationError)
		return nil, operationError
	}
	if outcome != nil {
		service.logOption(ctx, request, 0, coinsAfter, true, nil)
		return outcome, nil
	}

	var (
		variantText string
		hashtags    []string
		callError   error
	)
	if request.Option == OptionHashtags {
		hashtags, callError = service.generator.Hashtags(ctx, sourceText)
	} else {
		variantText, callError = service.generator.Rewrite(ctx, RewriteRequest{
			Text:           sourceText,
			Option:         request.Option,
			Tone:           request.Tone,
			TargetLanguage: request.TargetLanguage,
		})
	}
	if callError != nil {
		chargedError := ChargedCallError{Cost: cost, CoinsLeft: coinsAfter, Err: callError}
		service.logOption(ctx, request, cost, coinsAfter, false, chargedError)
		return nil, chargedError
	}

	operationError = service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		now := service.nowFn()
		account := state.EnsureAccount(request.UserID, "", now)
		cycle := state.ActiveCycle(request.UserID, now)
		payload := OptionPayload{OK: true, Cost: cost, CoinsLeft: account.Coins}
		if request.Option == OptionHashtags {
			payload.PostID = request.PostID.String()
			payload.Hashtags = hashtags
		} else {
			item := GeneratedItem{
				ID:             service.idFn(),
				Text:           variantText,
				SourcePostID:   request.PostID.String(),
				OptionKey:      string(request.Option),
				CreatedUnixUTC: now.UTC().Unix(),
			}
			if cycle != nil {
				cycle.AppendItem(item)
			}
			payload.PostID = item.ID
			payload.Post = variantText
		}
		encoded, err := service.marshalPayload(payload)
		if err != nil {
			return err
		}
		if request.ActionID != nil && cycle != nil {
			cycle.RecordAction(*request.ActionID, encoded, now)
		}
		outcome = &ActionOutcome{Payload: encoded}
		return nil
	})
	service.logOption(ctx, request, cost, coinsAfter, false, operationError)
	if operationError != nil {
		return nil, operationError
	}
	return outcome, nil
}

// DownloadRequest bills one variant download.
type DownloadRequest struct {
	UserID   UserID
	PostID   *PostID
	ActionID *ActionID
	Snapshot *Snapshot
}

// DownloadPayload is the response body of a download billing decision.
type DownloadPayload struct {
	OK               bool   `json:"ok"`
	PostID           string `json:"postId"`
	Cost             Coins  `json:"cost"`
	FreeWindowActive bool   `json:"freeWindowActive"`
	IsOfficial       bool   `json:"isOfficial"`
	CoinsLeft        Coins  `json:"coinsLeft"`
}

// DownloadVariant charges for downloading a variant. The officially
// confirmed post of a free cycle downloads free exactly once while the free
// window is active; everything else costs one coin.
func (service *Service) DownloadVariant(ctx context.Context, request DownloadRequest) (*ActionOutcome, error) {
	var outcome *ActionOutcome
	operationError := service.store.RunExclusive(ctx, func(_ context.Context, state *State) error {
		now := service.nowFn()
		account := state.EnsureAccount(request.UserID, "", now)
		state.MergeSnapshot(request.Snapshot, now)
		cycle := state.ActiveCycle(request.UserID, now)
		if cycle == nil || !cycle.Confirmed {
			return ErrConfirmRequired
		}
		if request.ActionID != nil {
			if payload, cached := cycle.CachedAction(*request.ActionID); cached {
				outcome = &ActionOutcome{Payload: payload, Replayed: true}
				return nil
			}
		}
		target := cycle.ConfirmedPostID
		if request.PostID != nil {
			target = request.PostID.String()
		}
		isOfficial := target == cycle.ConfirmedPostID
		if !isOfficial {
			targetID, err := NewPostID(target)
			if err != nil {
				return err
			}
			if cycle.ItemByID(targetID) == nil {
				return ErrUnknownPost
			}
		}
		freeWindowActive := !FreeSlotAvailable(account, now)
		cost := optionCosts[OptionDownload]
		if isOfficial && cycle.ConfirmedWasFree && freeWindowActive && !cycle.OfficialDownloadUsed {
			cost = 0
		}
		if account.Coins < cost {
			return InsufficientCoinsError{Coins: account.Coins, Required: cost}
		}
		account.Coins -= cost
		if cost == 0 {
			cycle.OfficialDownloadUsed = true
		}
		payload, err := service.marshalPayload(DownloadPayload{
			OK:               true,
			PostID:           target,
			Cost:             cost,
			FreeWindowActive: freeWindowActive,
			IsOfficial:       isOfficial,
			CoinsLeft:        account.Coins,
		})
		if err != nil {
			return err
		}
		if request.ActionID != nil {
			cycle.RecordAction(*request.ActionID, payload, now)
		}
		outcome = &ActionOutcome{Payload: payload}
		return nil
	})
	logEntry := OperationLog{Operation: operationDownload, UserID: request.UserID, Error: operationError}
	if outcome != nil {
		logEntry.Replayed = outcome.Replayed
	}
	service.logOperation(ctx, logEntry)
	if operationError != nil {
		return nil, operationError
	}
	return outcome, nil
}

func (service *Service) logGenerate(ctx context.Context, request GenerateRequest, cost Coins, coinsLeft Coins, replayed bool, operationError error) {
	entry := OperationLog{
		Operation: operationGenerate,
		UserID:    request.UserID,
		Cost:      cost,
		CoinsLeft: coinsLeft,
		Replayed:  replayed,
		Error:     operationError,
	}
	if request.ActionID != nil {
		entry.ActionID = request.ActionID.String()
	}
	service.logOperation(ctx, entry)
}

func (service *Service) logOption(ctx context.Context, request OptionRequest, cost Coins, coinsLeft Coins, replayed bool, operationError error) {
	entry := OperationLog{
		Operation: operationOption,
		UserID:    request.UserID,
		PostID:    request.PostID.String(),
		Cost:      cost,
		CoinsLeft: coinsLeft,
		Replayed:  replayed,
		Error:     operationError,
	}
	if request.ActionID != nil {
		entry.ActionID = request.ActionID.String()
	}
	service.logOperation(ctx, entry)
}
