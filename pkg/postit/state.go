package postit

import (
	"encoding/json"
	"time"
)

// Account is the durable per-user record.
type Account struct {
	UserID              string `json:"userId"`
	Coins               Coins  `json:"coins"`
	LastFreePostUnixUTC int64  `json:"lastFreePostTimestamp,omitempty"`
	PrimaryLanguage     string `json:"primaryLanguage"`
	PostCountToday      int    `json:"postCountToday"`
	Day                 string `json:"day"`
	CreatedUnixUTC      int64  `json:"createdAt"`
}

// GeneratedItem is one generated post or variant, append-only within a cycle.
type GeneratedItem struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	SourcePostID   string `json:"sourcePostId,omitempty"`
	OptionKey      string `json:"optionKey,omitempty"`
	CreatedUnixUTC int64  `json:"createdAt"`
}

// ActionRecord caches the response payload of an applied mutating action.
type ActionRecord struct {
	ActionID        string          `json:"actionId"`
	Payload         json.RawMessage `json:"payload"`
	OK              bool            `json:"ok"`
	RecordedUnixUTC int64           `json:"recordedAt"`
}

// Cycle tracks one user's generation/confirmation state for a calendar day.
type Cycle struct {
	ID                   string          `json:"id"`
	UserID               string          `json:"userId"`
	Day                  string          `json:"day"`
	PostNumber           int             `json:"postNumber"`
	GenerationIndex      int             `json:"generationIndex"`
	RegenerateCount      int             `json:"regenerateCount"`
	OptionVariantCount   int             `json:"optionVariantCount"`
	Items                []GeneratedItem `json:"generatedItems"`
	Confirmed            bool            `json:"confirmed"`
	ConfirmedPostID      string          `json:"confirmedPostId,omitempty"`
	ConfirmedWasFree     bool            `json:"confirmedWasFree"`
	StartCostCharged     Coins           `json:"startCostCharged"`
	OfficialDownloadUsed bool            `json:"officialDownloadUsed"`
	StartedUnixUTC       int64           `json:"startedAt"`
	Actions              []ActionRecord  `json:"actionResults,omitempty"`
}

// PaymentRecord mirrors one provider payment, keyed by the provider payment id.
type PaymentRecord struct {
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	Coins          Coins  `json:"coins"`
	Status         string `json:"status"`
	Credited       bool   `json:"credited"`
	CreatedUnixUTC int64  `json:"createdAt"`
}

// State is the whole ledger document owned by the Store.
type State struct {
	Users    map[string]*Account       `json:"users"`
	Payments map[string]*PaymentRecord `json:"payments"`
	Cycles   map[string]*Cycle         `json:"cycles"`
}

// NewState returns an empty normalized document.
func NewState() *State {
	state := &State{}
	state.Normalize()
	return state
}

// Normalize initializes missing maps so documents written by older
// deployments keep loading.
func (state *State) Normalize() {
	if state.Users == nil {
		state.Users = map[string]*Account{}
	}
	if state.Payments == nil {
		state.Payments = map[string]*PaymentRecord{}
	}
	if state.Cycles == nil {
		state.Cycles = map[string]*Cycle{}
	}
}

// EnsureAccount returns the account for userID, creating it on first sight
// and resetting the daily counters when the calendar day has rolled over.
// A rollover also discards the stored cycle.
func (state *State) EnsureAccount(userID UserID, preferredLanguage LanguageCode, now time.Time) *Account {
	key := userID.String()
	today := DayKeyFor(now)
	account, exists := state.Users[key]
	if !exists {
		language := preferredLanguage
		if language == "" {
			language = DefaultLanguage
		}
		account = &Account{
			UserID:          key,
			Coins:           WelcomeCoins,
			PrimaryLanguage: string(language),
			Day:             today,
			CreatedUnixUTC:  now.UTC().Unix(),
		}
		state.Users[key] = account
	}
	if account.PrimaryLanguage == "" {
		account.PrimaryLanguage = string(DefaultLanguage)
	}
	if account.Day != today {
		account.Day = today
		account.PostCountToday = 0
		delete(state.Cycles, key)
	}
	return account
}

// FreeSlotAvailable reports whether the rolling 24h free-post window is open.
func FreeSlotAvailable(account *Account, now time.Time) bool {
	if account.LastFreePostUnixUTC == 0 {
		return true
	}
	last := time.Unix(account.LastFreePostUnixUTC, 0)
	return now.Sub(last) >= FreeWindow
}

// ActiveCycle returns today's cycle for userID, lazily discarding an expired one.
func (state *State) ActiveCycle(userID UserID, now time.Time) *Cycle {
	key := userID.String()
	cycle, exists := state.Cycles[key]
	if !exists {
		return nil
	}
	if cycle.Day != DayKeyFor(now) {
		delete(state.Cycles, key)
		return nil
	}
	return cycle
}

// NewCycle creates a fresh cycle with all counters zeroed.
func NewCycle(id string, userID UserID, postNumber int, now time.Time) *Cycle {
	return &Cycle{
		ID:             id,
		UserID:         userID.String(),
		Day:            DayKeyFor(now),
		PostNumber:     postNumber,
		StartedUnixUTC: now.UTC().Unix(),
	}
}

// ItemByID finds a generated item within the cycle.
func (cycle *Cycle) ItemByID(postID PostID) *GeneratedItem {
	for index := range cycle.Items {
		if cycle.Items[index].ID == postID.String() {
			return &cycle.Items[index]
		}
	}
	return nil
}

// AppendItem records a generated post or variant.
func (cycle *Cycle) AppendItem(item GeneratedItem) {
	cycle.Items = append(cycle.Items, item)
}

// CachedAction returns the stored payload for a previously applied action id.
func (cycle *Cycle) CachedAction(actionID ActionID) (json.RawMessage, bool) {
	for index := range cycle.Actions {
		record := cycle.Actions[index]
		if record.ActionID == actionID.String() && record.OK {
			return record.Payload, true
		}
	}
	return nil, false
}

// RecordAction stores a successful response payload under the action id and
// prunes the cache to its bound, oldest entries first.
func (cycle *Cycle) RecordAction(actionID ActionID, payload json.RawMessage, now time.Time) {
	cycle.Actions = append(cycle.Actions, ActionRecord{
		ActionID:        actionID.String(),
		Payload:         payload,
		OK:              true,
		RecordedUnixUTC: now.UTC().Unix(),
	})
	if overflow := len(cycle.Actions) - actionCacheLimit; overflow > 0 {
		cycle.Actions = append([]ActionRecord(nil), cycle.Actions[overflow:]...)
	}
}
