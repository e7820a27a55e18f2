package service

import (
	"context"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/telemetry"
	"github.com/cloo-solutions/tutorcore/internal/tenant"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Authorizer is implemented by *tenant.Gate.
type Authorizer interface {
	Authorize(ctx context.Context, p tenant.Principal, op tenant.Operation, scope tenant.Scope) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// reportIntegrity logs integrity violations loudly and sends them to Sentry.
// Other errors pass through untouched.
func reportIntegrity(ctx context.Context, logger *zap.Logger, err error, fields ...zap.Field) error {
	if domain.IsCode(err, domain.ErrCodeIntegrityViolation) {
		logger.Error("integrity violation", append(fields, zap.Error(err))...)
		telemetry.CaptureError(ctx, err)
	}
	return err
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
