package httpapi

// Request bodies are strict DTOs validated at the boundary; unknown-shaped
// requests never reach the ledger logic.

type bootstrapRequest struct {
	ProfileID string `json:"profileId" binding:"required"`
	Language  string `json:"language"`
}

type primaryLanguageRequest struct {
	UserID         string `json:"userId"`
	TargetLanguage string `json:"targetLanguage" binding:"required"`
}

type statusRequest struct {
	UserID    string `json:"userId"`
	PaymentID string `json:"paymentId"`
}

type startRequest struct {
	UserID string `json:"userId"`
}

type generateRequest struct {
	UserID         string `json:"userId"`
	Kladblok       string `json:"kladblok"`
	Doelgroep      string `json:"doelgroep"`
	Intentie       string `json:"intentie"`
	Context        string `json:"context"`
	Keywords       string `json:"keywords"`
	OutputLanguage string `json:"outputLanguage"`
	ActionID       string `json:"actionId"`
}

type optionRequest struct {
	UserID         string `json:"userId"`
	PostID         string `json:"postId" binding:"required"`
	OptionKey      string `json:"optionKey" binding:"required"`
	Post           string `json:"post"`
	Tone           string `json:"tone"`
	TargetLanguage string `json:"targetLanguage"`
	ActionID       string `json:"actionId"`
}

type confirmRequest struct {
	UserID string `json:"userId"`
	PostID string `json:"postId" binding:"required"`
}

type downloadVariantRequest struct {
	UserID   string `json:"userId"`
	PostID   string `json:"postId"`
	ActionID string `json:"actionId"`
}

type checkoutRequest struct {
	UserID   string `json:"userId"`
	Bundle   int64  `json:"bundle" binding:"required"`
	ReturnTo string `json:"returnTo"`
}

type grantCoinsRequest struct {
	UserID string `json:"userId" binding:"required"`
	Coins  int64  `json:"coins" binding:"required"`
}
