package postit

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Coins is the spendable balance unit.
type Coins = int64

// UserID identifies a profile owner.
type UserID struct {
	value string
}

// PostID identifies a generated post or variant within a cycle.
type PostID struct {
	value string
}

// ActionID scopes duplicate detection for mutating client requests.
type ActionID struct {
	value string
}

// OptionKey enumerates the billable post options.
type OptionKey string

const (
	OptionTone       OptionKey = "tone"
	OptionHashtags   OptionKey = "hashtags"
	OptionRephrase   OptionKey = "rephrase"
	OptionRegenerate OptionKey = "regenerate"
	OptionLanguage   OptionKey = "language"
	OptionDownload   OptionKey = "download"
)

// LanguageCode is a supported output language.
type LanguageCode string

const (
	LanguageDutch   LanguageCode = "nl"
	LanguageEnglish LanguageCode = "en"
	LanguageGerman  LanguageCode = "de"
	LanguageFrench  LanguageCode = "fr"
	LanguageSpanish LanguageCode = "es"
)

var supportedLanguages = map[LanguageCode]struct{}{
	LanguageDutch:   {},
	LanguageEnglish: {},
	LanguageGerman:  {},
	LanguageFrench:  {},
	LanguageSpanish: {},
}

var (
	userIDPattern    = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)
	actionIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
	paymentIDPattern = regexp.MustCompile(`^tr_[A-Za-z0-9]{4,64}$`)
)

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if !userIDPattern.MatchString(trimmed) {
		return UserID{}, fmt.Errorf("%w: unsafe characters", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewPostID validates and normalizes a post id.
func NewPostID(raw string) (PostID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PostID{}, fmt.Errorf("%w: empty value", ErrInvalidPostID)
	}
	return PostID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id PostID) String() string {
	return id.value
}

// NewActionID validates a client-generated action id against the safe charset.
func NewActionID(raw string) (ActionID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ActionID{}, fmt.Errorf("%w: empty value", ErrInvalidActionID)
	}
	if !actionIDPattern.MatchString(trimmed) {
		return ActionID{}, fmt.Errorf("%w: must match %s", ErrInvalidActionID, actionIDPattern.String())
	}
	return ActionID{value: trimmed}, nil
}

// String returns the normalized action id.
func (id ActionID) String() string {
	return id.value
}

// ParseOptionKey validates an option key against the price table.
func ParseOptionKey(raw string) (OptionKey, error) {
	key := OptionKey(strings.TrimSpace(strings.ToLower(raw)))
	if _, known := optionCosts[key]; !known {
		return "", fmt.Errorf("%w: %q", ErrUnknownOption, raw)
	}
	return key, nil
}

// ParseLanguageCode validates a language against the supported set.
func ParseLanguageCode(raw string) (LanguageCode, error) {
	code := LanguageCode(strings.TrimSpace(strings.ToLower(raw)))
	if _, supported := supportedLanguages[code]; !supported {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, raw)
	}
	return code, nil
}

// ValidatePaymentID checks the provider payment id format.
func ValidatePaymentID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !paymentIDPattern.MatchString(trimmed) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentID, raw)
	}
	return trimmed, nil
}

// DayKeyFor returns the UTC calendar-day key for a moment in time.
func DayKeyFor(moment time.Time) string {
	return moment.UTC().Format("2006-01-02")
}
