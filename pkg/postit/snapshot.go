package postit

import "time"

// Snapshot is the client-held hint of (account, cycle) state. It exists so a
// stateless deployment can rehydrate state written by a previous request
// before the durable store catches up. The durable store stays the source of
// truth: merging may only raise billing-relevant values, never lower them.
type Snapshot struct {
	UserID              string `json:"userId"`
	Day                 string `json:"day"`
	PostCountToday      int    `json:"postCountToday"`
	Coins               Coins  `json:"coins"`
	LastFreePostUnixUTC int64  `json:"lastFreePostTimestamp,omitempty"`
	Cycle               *Cycle `json:"cycle,omitempty"`
	IssuedUnixUTC       int64  `json:"ts"`
}

// BuildSnapshot captures the current account and cycle for cookie emission.
func BuildSnapshot(account *Account, cycle *Cycle, now time.Time) Snapshot {
	return Snapshot{
		UserID:              account.UserID,
		Day:                 account.Day,
		PostCountToday:      account.PostCountToday,
		Coins:               account.Coins,
		LastFreePostUnixUTC: account.LastFreePostUnixUTC,
		Cycle:               cycle,
		IssuedUnixUTC:       now.UTC().Unix(),
	}
}

// MergeSnapshot folds a client snapshot into the loaded state. The merge is
// anti-regression only:
//   - postCountToday is raised, never lowered, and only for the same day
//   - coins are raised, never lowered
//   - the free-post timestamp moves forward, never back
//   - the cycle is replaced only by one for today that started at least as
//     recently as the stored one
//
// This narrows the staleness window across instances; it is not a
// linearizability guarantee.
func (state *State) MergeSnapshot(snapshot *Snapshot, now time.Time) {
	if snapshot == nil || snapshot.UserID == "" {
		return
	}
	account := state.Users[snapshot.UserID]
	if account == nil {
		return
	}
	today := DayKeyFor(now)
	if snapshot.Day == account.Day && snapshot.PostCountToday > account.PostCountToday {
		account.PostCountToday = snapshot.PostCountToday
	}
	if snapshot.Coins > account.Coins {
		account.Coins = snapshot.Coins
	}
	if snapshot.LastFreePostUnixUTC > account.LastFreePostUnixUTC {
		account.LastFreePostUnixUTC = snapshot.LastFreePostUnixUTC
	}
	if snapshot.Cycle == nil || snapshot.Cycle.Day != today || snapshot.Cycle.UserID != snapshot.UserID {
		return
	}
	stored := state.Cycles[snapshot.UserID]
	if stored == nil || snapshot.Cycle.StartedUnixUTC >= stored.StartedUnixUTC {
		replacement := *snapshot.Cycle
		state.Cycles[snapshot.UserID] = &replacement
	}
}
