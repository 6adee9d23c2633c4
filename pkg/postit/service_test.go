package postit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBootstrapGrantsWelcomeCoinsOnce(test *testing.T) {
	test.Parallel()
	clock := newTestClock()
	service := mustNewService(test, mustNewStore(test), clock)
	userID := mustUserID(test, "user-1")

	first, err := service.Bootstrap(context.Background(), userID, LanguageEnglish)
	if err != nil {
		test.Fatalf("bootstrap: %v", err)
	}
	if first.Profile.Coins != WelcomeCoins {
		test.Fatalf("expected %d welcome coins, got %d", WelcomeCoins, first.Profile.Coins)
	}
	if first.Profile.PrimaryLanguage != string(LanguageEnglish) {
		test.Fatalf("expected primary language en, got %s", first.Profile.PrimaryLanguage)
	}

	second, err := service.Bootstrap(context.Background(), userID, LanguageGerman)
	if err != nil {
		test.Fatalf("second bootstrap: %v", err)
	}
	if second.Profile.Coins != WelcomeCoins {
		test.Fatalf("welcome grant applied twice: %d", second.Profile.Coins)
	}
	if second.Profile.PrimaryLanguage != string(LanguageEnglish) {
		test.Fatalf("bootstrap must not overwrite an existing language, got %s", second.Profile.PrimaryLanguage)
	}
}

func TestBootstrapDefaultsToDutch(test *testing.T) {
	test.Parallel()
	clock := newTestClock()
	service := mustNewService(test, mustNewStore(test), clock)

	result, err := service.Bootstrap(context.Background(), mustUserID(test, "user-nl"), "")
	if err != nil {
		test.Fatalf("bootstrap: %v", err)
	}
	if result.Profile.PrimaryLanguage != string(LanguageDutch) {
		test.Fatalf("expected default nl, got %s", result.Profile.PrimaryLanguage)
	}
}

func TestSetPrimaryLanguageChargesOnlyOnChange(test *testing.T) {
	test.Parallel()
	clock := newTestClock()
	service := mustNewService(test, mustNewStore(test), clock)
	userID := mustUserID(test, "lang-user")

	changed, err := service.SetPrimaryLanguage(context.Background(), userID, LanguageEnglish)
	if err != nil {
		test.Fatalf("set language: %v", err)
	}
	if changed.Cost != LanguageSurcharge {
		test.Fatalf("expected charge of %d, got %d", LanguageSurcharge, changed.Cost)
	}
	if changed.CoinsLeft != WelcomeCoins-LanguageSurcharge {
		test.Fatalf("unexpected balance %d", changed.CoinsLeft)
	}

	unchanged, err := service.SetPrimaryLanguage(context.Background(), userID, LanguageEnglish)
	if err != nil {
		test.Fatalf("repeat set language: %v", err)
	}
	if unchanged.Cost != 0 {
		test.Fatalf("no-op change must be free, charged %d", unchanged.Cost)
	}
}

func TestSetPrimaryLanguageInsufficientBalance(test *testing.T) {
	test.Parallel()
	clock := newTestClock()
	service := mustNewService(test, mustNewStore(test), clock)
	userID := mustUserID(test, "lang-poor")
	mustSetCoins(test, service, userID, 1)

	_, err := service.SetPrimaryLanguage(context.Background(), userID, LanguageSpanish)
	var insufficient InsufficientCoinsError
	if !errors.As(err, &insufficient) {
		test.Fatalf("expected InsufficientCoinsError, got %v", err)
	}
	if insufficient.Coins != 1 || insufficient.Required != LanguageSurcharge {
		test.Fatalf("unexpected error detail: %+v", insufficient)
	}
	if mustCoins(test, service, userID) != 1 {
		test.Fatalf("failed charge must not move the balance")
	}
}

func TestStartFreeThenPaid(test *testing.T) {
	test.Parallel()
	clock := newTestClock()
	service := mustNewService(test, mustNewStore(test), clock)
	userID := mustUserID(test, "start-user")

	free, err := service.Start(context.Background(), userID, nil)
	if err != nil {
		test.Fatalf("first start: %v", err)
	}
	if free.CostToStart != 0 {
		test.Fatalf("first post of the window must be free, cost %d", free.CostToStart)
	}
	if free.PostNumber != 1 {
		test.Fatalf("expected post number 1, got %d", free.PostNumber)
	}

	// Re-starting the open cycle is idempotent.
	again, err := service.Start(context.Background(), userID, nil)
	if err != nil {
		test.Fatalf("repeat start: %v", err)
	}
	if again.PostNumber != 1 || again.CoinsLeft != free.CoinsLeft {
		test.Fatalf("repeat start must not open or charge a new cycle: %+v", again)
	}

	confirmFreeCycle(test, service, userID)

	paid, err := service.Start(context.Background(), userID, nil)
	if err != nil {
		test.Fatalf("second start: %v", err)
	}
	if paid.CostToStart != StartCost {
		test.Fatalf("second post inside the window must cost %d, got %d", StartCost, paid.CostToStart)
	}
	if paid.PostNumber != 2 {
		test.Fatalf("expected post number 2, got %d", paid.PostNumber)
	}
}

func TestStartInsufficientBalance(test *testing.T) {
	test.Parallel()
	clock := newTestClock()
	service := mustNewService(test, mustNewStore(test), clock)
	userID := mustUserID(test, "start-poor")

	confirmFreeCycle(test, service, userID)
	mustSetCoins(test, service, userID, 0)

	_, err := service.Start(context.Background(), userID, nil)
	if !errors.Is(err, ErrInsufficientCoins) {
		test.Fatalf("expected insufficient coins, got %v", err)
	}
}

func TestConfirmSamePostIsIdempotent(test *testing.T) {
	test.Parallel()
	clock := newTestClock()
	generator := newStubGenerator()
	service := mustNewService(test, mustNewStore(test), clock, WithTextGenerator(generator))
	userID := mustUserID(test, "confirm-user")

	payload := mustGenerate(test, service, userID, nil)
	postID := mustPostID(test, payload.PostID)

	first, err := service.Confirm(context.Background(), userID, postID, nil)
	if err != nil {
		test.Fatalf("confirm: %v", err)
	}
	if first.PostCountToday != 1 {
		test.Fatalf("expected post count 1, got %d", first.PostCountToday)
	}

	second, err := service.Confirm(context.Background(), userID, postID, nil)
	if err != nil {
		test.Fatalf("re-confirm: %v", err)
	}
	if second.Cost != 0 {
		test.Fatalf("re-confirming the same post must not charge, cost %d", second.Cost)
	}
	if second.PostCountToday != 1 {
		test.Fatalf("re-confirm must not bump the post count, got %d", second.PostCountToday)
	}
	if second.CoinsLeft != first.CoinsLeft {
		test.Fatalf("re-confirm moved the balance: %d -> %d", first.CoinsLeft, second.CoinsLeft)
	}
}

func TestConfirmDifferentPostConflicts(test *testing.T) {
	test.Parallel()
	clock := newTestClock()
	generator := newStubGenerator()
	service := mustNewService(test, mustNewStore(test), clock, WithTextGenerator(generator))
	userID := mustUserID(test, "conflict-user")

	first := mustGenerate(test, service, userID, nil)
	second := mustGenerate(test, service, userID, nil)
	if _, err := service.Confirm(context.Background(), userID, mustPostID(test, first.PostID), nil); err != nil {
		test.Fatalf("confirm: %v", err)
	}

	_, err := service.Confirm(context.Background(), userID, mustPostID(test, second.PostID), nil)
	if !errors.Is(err, ErrConfirmConflict) {
		test.Fatalf("expected ErrConfirmConflict, got %v", err)
	}
}

func TestConfirmUnknownPost(test *testing.T) {
	test.Parallel()
	clock := newTestClock()
	generator := newStubGenerator()
	service := mustNewService(test, mustNewStore(test), clock, WithTextGenerator(generator))
	userID := mustUserID(test, "unknown-post-user")

	mustGenerate(test, service, userID, nil)

	_, err := service.Confirm(context.Background(), userID, mustPostID(test, "never-generated"), nil)
	if !errors.Is(err, ErrUnknownPost) {
		test.Fatalf("expected ErrUnknownPost, got %v", err)
	}
}

func TestConfirmWithoutCycle(test *testing.T) {
	test.Parallel()
	clock := newTestClock()
	service := mustNewService(test, mustNewStore(test), clock)

	_, err := service.Confirm(context.Background(), mustUserID(test, "no-cycle"), mustPostID(test, "p-1"), nil)
	if !errors.Is(err, ErrNoActiveCycle) {
		test.Fatalf("expected ErrNoActiveCycle, got %v", err)
	}
}

func TestFreeConfirmStampsWindowAndPaidDoesNot(test *testing.T) {
	test.Parallel()
	clock := newTestClock()
	generator := newStubGenerator()
	service := mustNewService(test, mustNewStore(test), clock, WithTextGenerator(generator))
	userID := mustUserID(test, "window-user")

	// First confirm is free and consumes the window.
	free := mustGenerate(test, service, userID, nil)
	freeResult, err := service.Confirm(context.Background(), userID, mustPostID(test, free.PostID), nil)
	if err != nil {
		test.Fatalf("free confirm: %v", err)
	}
	if freeResult.Cost != 0 {
		test.Fatalf("expected free confirm, cost %d", freeResult.Cost)
	}

	status, err := service.Status(context.Background(), userID, "", nil)
	if err != nil {
		test.Fatalf("status: %v", err)
	}
	if !status.DaySlotUsed || status.CostToStart != StartCost {
		test.Fatalf("window must be consumed: %+v", status)
	}

	// A second cycle inside the window pays at start and must not restamp.
	started, err := service.Start(context.Background(), userID, nil)
	if err != nil {
		test.Fatalf("paid start: %v", err)
	}
	if started.CostToStart != StartCost {
		test.Fatalf("expected paid start of %d, got %d", StartCost, started.CostToStart)
	}
	paid := mustGenerate(test, service, userID, nil)
	paidResult, err := service.Confirm(context.Background(), userID, mustPostID(test, paid.PostID), nil)
	if err != nil {
		test.Fatalf("paid confirm: %v", err)
	}
	if paidResult.Cost != 0 {
		test.Fatalf("start already paid, confirm charged %d", paidResult.Cost)
	}

	// 24h after the free confirm the window opens again.
	clock.Advance(FreeWindow)
	reopened, err := service.Status(context.Background(), userID, "", nil)
	if err != nil {
		test.Fatalf("status after window: %v", err)
	}
	if reopened.DaySlotUsed {
		test.Fatalf("window must reopen after %s", FreeWindow)
	}
}

func TestStartAfterPaidStartDoesNotChargeConfirm(test *testing.T) {
	test.Parallel()
	clock := newTestClock()
	generator := newStubGenerator()
	service := mustNewService(test, mustNewStore(test), clock, WithTextGenerator(generator))
	userID := mustUserID(test, "prepaid-user")

	confirmFreeCycle(test, service, userID)

	started, err := service.Start(context.Background(), userID, nil)
	if err != nil {
		test.Fatalf("paid start: %v", err)
	}
	if started.CostToStart != StartCost {
		test.Fatalf("expected paid start, cost %d", started.CostToStart)
	}
	balanceAfterStart := started.CoinsLeft

	payload := mustGenerate(test, service, userID, nil)
	confirmed, err := service.Confirm(context.Background(), userID, mustPostID(test, payload.PostID), nil)
	if err != nil {
		test.Fatalf("confirm: %v", err)
	}
	if confirmed.Cost != 0 {
		test.Fatalf("start already paid, confirm charged %d", confirmed.Cost)
	}
	if confirmed.CoinsLeft != balanceAfterStart {
		test.Fatalf("confirm moved the balance: %d -> %d", balanceAfterStart, confirmed.CoinsLeft)
	}
}

func TestStatusReportsProgress(test *testing.T) {
	test.Parallel()
	clock := newTestClock()
	service := mustNewService(test, mustNewStore(test), clock)
	userID := mustUserID(test, "status-user")

	status, err := service.Status(context.Background(), userID, "", nil)
	if err != nil {
		test.Fatalf("status: %v", err)
	}
	if status.Coins != WelcomeCoins {
		test.Fatalf("expected welcome balance, got %d", status.Coins)
	}
	if status.PostNumNext != 1 || status.DaySlotUsed || status.CostToStart != 0 {
		test.Fatalf("fresh account status wrong: %+v", status)
	}
	if status.ExtraGenerationCost != LanguageSurcharge {
		test.Fatalf("expected surcharge %d, got %d", LanguageSurcharge, status.ExtraGenerationCost)
	}
	if status.Confirmed {
		test.Fatalf("fresh account cannot be confirmed")
	}
}

func TestDailyRolloverResetsCountersAndCycle(test *testing.T) {
	test.Parallel()
	clock := newTestClock()
	generator := newStubGenerator()
	service := mustNewService(test, mustNewStore(test), clock, WithTextGenerator(generator))
	userID := mustUserID(test, "rollover-user")

	payload := mustGenerate(test, service, userID, nil)
	if _, err := service.Confirm(context.Background(), userID, mustPostID(test, payload.PostID), nil); err != nil {
		test.Fatalf("confirm: %v", err)
	}

	clock.Advance(25 * time.Hour)

	status, err := service.Status(context.Background(), userID, "", nil)
	if err != nil {
		test.Fatalf("status after rollover: %v", err)
	}
	if status.PostNumNext != 1 {
		test.Fatalf("post count must reset at midnight UTC, next=%d", status.PostNumNext)
	}
	if status.Confirmed {
		test.Fatalf("yesterday's cycle must be discarded")
	}
}

// confirmFreeCycle opens and confirms one free cycle so follow-up operations
// run against a consumed free window.
func confirmFreeCycle(test *testing.T, service *Service, userID UserID) {
	test.Helper()
	err := service.store.RunExclusive(context.Background(), func(_ context.Context, state *State) error {
		now := service.nowFn()
		account := state.EnsureAccount(userID, "", now)
		cycle := NewCycle(service.idFn(), userID, account.PostCountToday+1, now)
		cycle.AppendItem(GeneratedItem{ID: service.idFn(), Text: "seed", CreatedUnixUTC: now.Unix()})
		cycle.Confirmed = true
		cycle.ConfirmedPostID = cycle.Items[0].ID
		cycle.ConfirmedWasFree = true
		state.Cycles[userID.String()] = cycle
		account.LastFreePostUnixUTC = now.UTC().Unix()
		account.PostCountToday++
		return nil
	})
	if err != nil {
		test.Fatalf("seed confirmed cycle: %v", err)
	}
}
