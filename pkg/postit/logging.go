package postit

import (
	"context"

	"go.uber.org/zap"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing wizard operation.
type OperationLog struct {
	Operation string
	UserID    UserID
	PostID    string
	ActionID  string
	Cost      Coins
	CoinsLeft Coins
	Replayed  bool
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithTextGenerator wires the LLM collaborator.
func WithTextGenerator(generator TextGenerator) ServiceOption {
	return func(service *Service) {
		service.generator = generator
	}
}

// WithPaymentProvider wires the payment collaborator. Without one, checkout
// falls back to simulated credits.
func WithPaymentProvider(provider PaymentProvider) ServiceOption {
	return func(service *Service) {
		service.provider = provider
	}
}

// WithIDGenerator overrides the post/cycle id source (tests).
func WithIDGenerator(idFn func() string) ServiceOption {
	return func(service *Service) {
		service.idFn = idFn
	}
}

// ZapOperationLogger adapts a zap logger to the OperationLogger contract.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wires a zap-backed operation logger.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	return &ZapOperationLogger{logger: logger}
}

// LogOperation emits one structured log line per operation.
func (zapLogger *ZapOperationLogger) LogOperation(_ context.Context, entry OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.String("status", entry.Status),
		zap.Int64("cost", entry.Cost),
		zap.Int64("coins_left", entry.CoinsLeft),
	}
	if entry.PostID != "" {
		fields = append(fields, zap.String("post_id", entry.PostID))
	}
	if entry.ActionID != "" {
		fields = append(fields, zap.String("action_id", entry.ActionID))
	}
	if entry.Replayed {
		fields = append(fields, zap.Bool("idempotent_replay", true))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		zapLogger.logger.Warn("wizard operation failed", fields...)
		return
	}
	zapLogger.logger.Info("wizard operation", fields...)
}
