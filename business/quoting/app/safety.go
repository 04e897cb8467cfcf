package app

import (
	"context"
	"fmt"
	"math/big"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/quote-engine/business/quoting/domain"
	"github.com/fd1az/quote-engine/internal/apperror"
	"github.com/fd1az/quote-engine/internal/logger"
)

// SafetyValidator rejects dex quotes that fall too far below the oracle reference.
type SafetyValidator struct {
	logger  logger.LoggerInterface
	metrics *quotingMetrics
}

// NewSafetyValidator creates a validator.
func NewSafetyValidator(log logger.LoggerInterface) (*SafetyValidator, error) {
	m, err := initMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return &SafetyValidator{logger: log, metrics: m}, nil
}

// Validate passes iff dexOut*10000 >= feedOut*(10000-toleranceBps). A zero feedOut passes.
func (v *SafetyValidator) Validate(ctx context.Context, dexOut, feedOut *big.Int, toleranceBps uint32) error {
	if domain.WithinTolerance(dexOut, feedOut, toleranceBps) {
		return nil
	}

	minOut := domain.MinAcceptable(feedOut, toleranceBps)
	v.metrics.safetyRejections.Add(ctx, 1, metric.WithAttributes(attribute.Int("tolerance_bps", int(toleranceBps))))
	v.logger.Warn(ctx, "dex quote rejected by oracle reference",
		"dex_out", dexOut.String(),
		"feed_out", feedOut.String(),
		"min_out", minOut.String(),
		"tolerance_bps", toleranceBps)

	return apperror.New(apperror.CodeSlippageExceeded,
		apperror.WithContext(fmt.Sprintf("dex=%s min=%s feed=%s tolerance=%dbps", dexOut, minOut, feedOut, toleranceBps)))
}
