package postit

import "time"

const (
	// DefaultLanguage is assigned to accounts created without a preference.
	DefaultLanguage = LanguageDutch

	// WelcomeCoins is granted once when an account is first seen.
	WelcomeCoins Coins = 5

	// StartCost is charged to open a cycle outside the free window.
	StartCost Coins = 1

	// LanguageSurcharge is charged when generating away from the primary language.
	LanguageSurcharge Coins = 3

	// FreeWindow is the rolling window during which one zero-cost post is allowed.
	FreeWindow = 24 * time.Hour

	generationCap    = 3
	regenerateCap    = 2
	optionVariantCap = 3

	actionCacheLimit    = 50
	reconcileSweepLimit = 10
)

var optionCosts = map[OptionKey]Coins{
	OptionTone:       2,
	OptionHashtags:   1,
	OptionRephrase:   1,
	OptionRegenerate: 0,
	OptionLanguage:   3,
	OptionDownload:   1,
}

// CoinBundle is a purchasable amount with its price in euro cents.
type CoinBundle struct {
	Coins      Coins
	PriceCents int64
}

var coinBundles = map[Coins]CoinBundle{
	20:  {Coins: 20, PriceCents: 1000},
	50:  {Coins: 50, PriceCents: 2250},
	100: {Coins: 100, PriceCents: 4000},
}

// BundleFor resolves a purchasable coin bundle.
func BundleFor(coins Coins) (CoinBundle, error) {
	bundle, known := coinBundles[coins]
	if !known {
		return CoinBundle{}, ErrUnknownBundle
	}
	return bundle, nil
}

// CostForOption returns the fixed price for a post option.
func CostForOption(key OptionKey) (Coins, error) {
	cost, known := optionCosts[key]
	if !known {
		return 0, ErrUnknownOption
	}
	return cost, nil
}

const (
	operationBootstrap       = "bootstrap"
	operationSetLanguage     = "set_language"
	operationStatus          = "status"
	operationStart           = "start"
	operationGenerate        = "generate"
	operationOption          = "option"
	operationConfirm         = "confirm"
	operationDownload        = "download"
	operationCheckout        = "checkout"
	operationWebhook         = "webhook"
	operationGrant           = "grant"
	operationReconcile       = "reconcile"
	operationReconcileSweep  = "reconcile_sweep"
	operationStatusOK        = "ok"
	operationStatusError     = "error"
	paymentStatusPaid        = "paid"
	paymentStatusPending     = "pending"
	paymentProviderSimulated = "simulated"
)
