package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tcmvision-hue/post-it-core/pkg/postit"
)

const replayHeader = "X-Idempotent-Replay"

type httpHandler struct {
	logger      *zap.Logger
	service     *postit.Service
	codec       *StateCookieCodec
	adminSecret string
	cookieTTL   int
}

func (handler *httpHandler) handleBootstrap(ctx *gin.Context) {
	var request bootstrapRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("profileId is required"))
		return
	}
	userID, err := postit.NewUserID(request.ProfileID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	language := postit.LanguageCode("")
	if request.Language != "" {
		language, err = postit.ParseLanguageCode(request.Language)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
	}
	result, err := handler.service.Bootstrap(ctx.Request.Context(), userID, language)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.setUserCookie(ctx, userID)
	handler.emitStateCookie(ctx, userID)
	ctx.JSON(http.StatusOK, result)
}

func (handler *httpHandler) handlePrimaryLanguage(ctx *gin.Context) {
	var request primaryLanguageRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("targetLanguage is required"))
		return
	}
	userID, err := handler.resolveUserID(ctx, request.UserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	target, err := postit.ParseLanguageCode(request.TargetLanguage)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	result, err := handler.service.SetPrimaryLanguage(ctx.Request.Context(), userID, target)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.emitStateCookie(ctx, userID)
	ctx.JSON(http.StatusOK, result)
}

func (handler *httpHandler) handleStatus(ctx *gin.Context) {
	var request statusRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("expected JSON body"))
		return
	}
	userID, err := handler.resolveUserID(ctx, request.UserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	snapshot := handler.decodeStateCookie(ctx, userID)
	result, err := handler.service.Status(ctx.Request.Context(), userID, strings.TrimSpace(request.PaymentID), snapshot)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.emitStateCookie(ctx, userID)
	ctx.JSON(http.StatusOK, result)
}

func (handler *httpHandler) handleStart(ctx *gin.Context) {
	var request startRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("expected JSON body"))
		return
	}
	userID, err := handler.resolveUserID(ctx, request.UserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	snapshot := handler.decodeStateCookie(ctx, userID)
	result, err := handler.service.Start(ctx.Request.Context(), userID, snapshot)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.emitStateCookie(ctx, userID)
	ctx.JSON(http.StatusOK, result)
}

func (handler *httpHandler) handleGenerate(ctx *gin.Context) {
	var request generateRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("expected JSON body"))
		return
	}
	userID, err := handler.resolveUserID(ctx, request.UserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	actionID, err := parseOptionalActionID(request.ActionID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	outputLanguage := postit.LanguageCode("")
	if request.OutputLanguage != "" {
		outputLanguage, err = postit.ParseLanguageCode(request.OutputLanguage)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
	}
	outcome, err := handler.service.Generate(ctx.Request.Context(), postit.GenerateRequest{
		UserID:   userID,
		ActionID: actionID,
		Snapshot: handler.decodeStateCookie(ctx, userID),
		Intake: postit.Intake{
			Notes:    request.Kladblok,
			Audience: request.Doelgroep,
			Intent:   request.Intentie,
			Context:  request.Context,
			Keywords: request.Keywords,
			Language: outputLanguage,
		},
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.emitStateCookie(ctx, userID)
	handler.respondOutcome(ctx, outcome)
}

func (handler *httpHandler) handleOption(ctx *gin.Context) {
	var request optionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("postId and optionKey are required"))
		return
	}
	userID, err := handler.resolveUserID(ctx, request.UserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	postID, err := postit.NewPostID(request.PostID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	option, err := postit.ParseOptionKey(request.OptionKey)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if option == postit.OptionTone && strings.TrimSpace(request.Tone) == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse("tone is required"))
		return
	}
	targetLanguage := postit.LanguageCode("")
	if option == postit.OptionLanguage {
		targetLanguage, err = postit.ParseLanguageCode(request.TargetLanguage)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
	}
	actionID, err := parseOptionalActionID(request.ActionID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	outcome, err := handler.service.ApplyOption(ctx.Request.Context(), postit.OptionRequest{
		UserID:         userID,
		PostID:         postID,
		Option:         option,
		Text:           request.Post,
		Tone:           strings.TrimSpace(request.Tone),
		TargetLanguage: targetLanguage,
		ActionID:       actionID,
		Snapshot:       handler.decodeStateCookie(ctx, userID),
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.emitStateCookie(ctx, userID)
	handler.respondOutcome(ctx, outcome)
}

func (handler *httpHandler) handleConfirm(ctx *gin.Context) {
	var request confirmRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("postId is required"))
		return
	}
	userID, err := handler.resolveUserID(ctx, request.UserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	postID, err := postit.NewPostID(request.PostID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	result, err := handler.service.Confirm(ctx.Request.Context(), userID, postID, handler.decodeStateCookie(ctx, userID))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.emitStateCookie(ctx, userID)
	ctx.JSON(http.StatusOK, result)
}

func (handler *httpHandler) handleDownloadVariant(ctx *gin.Context) {
	var request downloadVariantRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("expected JSON body"))
		return
	}
	userID, err := handler.resolveUserID(ctx, request.UserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var postID *postit.PostID
	if request.PostID != "" {
		parsed, parseErr := postit.NewPostID(request.PostID)
		if parseErr != nil {
			handler.respondError(ctx, parseErr)
			return
		}
		postID = &parsed
	}
	actionID, err := parseOptionalActionID(request.ActionID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	outcome, err := handler.service.DownloadVariant(ctx.Request.Context(), postit.DownloadRequest{
		UserID:   userID,
		PostID:   postID,
		ActionID: actionID,
		Snapshot: handler.decodeStateCookie(ctx, userID),
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.emitStateCookie(ctx, userID)
	handler.respondOutcome(ctx, outcome)
}

func (handler *httpHandler) handleCheckout(ctx *gin.Context) {
	var request checkoutRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("bundle is required"))
		return
	}
	userID, err := handler.resolveUserID(ctx, request.UserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	result, err := handler.service.Checkout(ctx.Request.Context(), userID, request.Bundle, request.ReturnTo)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.emitStateCookie(ctx, userID)
	ctx.JSON(http.StatusOK, result)
}

// handleWebhook always answers 200 so the provider does not hammer the
// endpoint with retries; failures are logged server-side only.
func (handler *httpHandler) handleWebhook(ctx *gin.Context) {
	paymentID := ctx.PostForm("id")
	if paymentID == "" {
		paymentID = ctx.Query("id")
	}
	if paymentID == "" {
		var body struct {
			ID string `json:"id"`
		}
		if err := ctx.ShouldBindJSON(&body); err == nil {
			paymentID = body.ID
		}
	}
	if paymentID != "" {
		if err := handler.service.HandleWebhook(ctx.Request.Context(), paymentID); err != nil {
			handler.logger.Warn("webhook processing failed",
				zap.String("payment_id", paymentID),
				zap.Error(err))
		}
	}
	ctx.String(http.StatusOK, "ok")
}

func (handler *httpHandler) handleGrantCoins(ctx *gin.Context) {
	if handler.adminSecret == "" || ctx.GetHeader("x-admin-secret") != handler.adminSecret {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}
	var request grantCoinsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("userId and coins are required"))
		return
	}
	userID, err := postit.NewUserID(request.UserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	result, err := handler.service.GrantCoins(ctx.Request.Context(), userID, request.Coins)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// resolveUserID prefers the request body, then the uid cookie, and finally
// mints a fresh opaque id for first-contact requests.
func (handler *httpHandler) resolveUserID(ctx *gin.Context, bodyUserID string) (postit.UserID, error) {
	raw := strings.TrimSpace(bodyUserID)
	if raw == "" {
		if cookieValue, err := ctx.Cookie(userCookieName); err == nil {
			raw = cookieValue
		}
	}
	if raw == "" {
		raw = uuid.NewString()
	}
	userID, err := postit.NewUserID(raw)
	if err != nil {
		return postit.UserID{}, err
	}
	handler.setUserCookie(ctx, userID)
	return userID, nil
}

func (handler *httpHandler) setUserCookie(ctx *gin.Context, userID postit.UserID) {
	ctx.SetCookie(userCookieName, userID.String(), handler.cookieTTL, "/", "", false, true)
}

func (handler *httpHandler) decodeStateCookie(ctx *gin.Context, userID postit.UserID) *postit.Snapshot {
	cookieValue, err := ctx.Cookie(stateCookieName)
	if err != nil {
		return nil
	}
	return handler.codec.Decode(cookieValue, userID.String())
}

// emitStateCookie refreshes the client-held snapshot after a mutation. Best
// effort: a failure here must not fail the request that already committed.
func (handler *httpHandler) emitStateCookie(ctx *gin.Context, userID postit.UserID) {
	snapshot, err := handler.service.CurrentSnapshot(ctx.Request.Context(), userID)
	if err != nil {
		handler.logger.Warn("state snapshot failed", zap.Error(err))
		return
	}
	encoded, err := handler.codec.Encode(*snapshot)
	if err != nil {
		handler.logger.Warn("state cookie encode failed", zap.Error(err))
		return
	}
	ctx.SetCookie(stateCookieName, encoded, handler.cookieTTL, "/", "", false, true)
}

func (handler *httpHandler) respondOutcome(ctx *gin.Context, outcome *postit.ActionOutcome) {
	if outcome.Replayed {
		ctx.Header(replayHeader, "true")
	}
	ctx.Data(http.StatusOK, "application/json; charset=utf-8", outcome.Payload)
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	var insufficient postit.InsufficientCoinsError
	if errors.As(err, &insufficient) {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":    "Insufficient coins",
			"coins":    insufficient.Coins,
			"required": insufficient.Required,
		})
		return
	}
	var charged postit.ChargedCallError
	if errors.As(err, &charged) {
		ctx.JSON(http.StatusBadGateway, gin.H{
			"error":     "Generation failed",
			"cost":      charged.Cost,
			"coinsLeft": charged.CoinsLeft,
		})
		return
	}
	switch {
	case errors.Is(err, postit.ErrConfirmConflict):
		ctx.JSON(http.StatusConflict, errorResponse("Another post is already confirmed"))
	case errors.Is(err, postit.ErrCycleConfirmed),
		errors.Is(err, postit.ErrNoActiveCycle),
		errors.Is(err, postit.ErrConfirmRequired),
		errors.Is(err, postit.ErrGenerationCapReached),
		errors.Is(err, postit.ErrRegenerateCapReached),
		errors.Is(err, postit.ErrVariantCapReached):
		ctx.JSON(http.StatusForbidden, errorResponse(err.Error()))
	case errors.Is(err, postit.ErrUnknownOption),
		errors.Is(err, postit.ErrUnknownPost),
		errors.Is(err, postit.ErrUnknownBundle),
		errors.Is(err, postit.ErrUnsupportedLanguage),
		errors.Is(err, postit.ErrInvalidUserID),
		errors.Is(err, postit.ErrInvalidPostID),
		errors.Is(err, postit.ErrInvalidActionID),
		errors.Is(err, postit.ErrInvalidPaymentID),
		errors.Is(err, postit.ErrInvalidGrantAmount),
		errors.Is(err, postit.ErrPaymentUserMismatch):
		ctx.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	default:
		handler.logger.Error("request failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func parseOptionalActionID(raw string) (*postit.ActionID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	actionID, err := postit.NewActionID(raw)
	if err != nil {
		return nil, err
	}
	return &actionID, nil
}

func errorResponse(message string) gin.H {
	return gin.H{"error": message}
}
