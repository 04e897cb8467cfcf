package app

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/quote-engine/business/quoting/domain"
	"github.com/fd1az/quote-engine/internal/apperror"
)

// Settings is the process-wide mutable quoting state. Each field has a single mutation path,
// gated on the operator.
type Settings struct {
	mu             sync.RWMutex
	operator       common.Address
	slippageBps    uint32
	toleranceBps   uint32
	maxSlippageBps uint32
}

// SettingsSnapshot is a consistent copy of Settings.
type SettingsSnapshot struct {
	Operator       common.Address `json:"operator"`
	SlippageBps    uint32         `json:"slippageBps"`
	ToleranceBps   uint32         `json:"toleranceBps"`
	MaxSlippageBps uint32         `json:"maxSlippageBps"`
}

// NewSettings validates the defaults against the same bounds the setters enforce.
func NewSettings(operator common.Address, slippageBps, toleranceBps, maxSlippageBps uint32) (*Settings, error) {
	if maxSlippageBps == 0 || maxSlippageBps > domain.BpsDenominator {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(fmt.Sprintf("max slippage %d bps", maxSlippageBps)))
	}
	if slippageBps >= maxSlippageBps {
		return nil, apperror.New(apperror.CodeInvalidSlippage,
			apperror.WithContext(fmt.Sprintf("default %d bps not below max %d bps", slippageBps, maxSlippageBps)))
	}
	if toleranceBps >= domain.BpsDenominator {
		return nil, apperror.New(apperror.CodeInvalidTolerance,
			apperror.WithContext(fmt.Sprintf("default %d bps", toleranceBps)))
	}

	return &Settings{
		operator:       operator,
		slippageBps:    slippageBps,
		toleranceBps:   toleranceBps,
		maxSlippageBps: maxSlippageBps,
	}, nil
}

func (s *Settings) Slippage() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slippageBps
}

func (s *Settings) Tolerance() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.toleranceBps
}

func (s *Settings) Snapshot() SettingsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SettingsSnapshot{
		Operator:       s.operator,
		SlippageBps:    s.slippageBps,
		ToleranceBps:   s.toleranceBps,
		MaxSlippageBps: s.maxSlippageBps,
	}
}

// SetSlippage updates the haircut. bps must be strictly below the maximum.
func (s *Settings) SetSlippage(caller common.Address, bps uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(caller); err != nil {
		return err
	}
	if bps >= s.maxSlippageBps {
		return apperror.New(apperror.CodeInvalidSlippage,
			apperror.WithContext(fmt.Sprintf("%d bps not below max %d bps", bps, s.maxSlippageBps)))
	}
	s.slippageBps = bps
	return nil
}

// SetTolerance updates the oracle tolerance. bps must be below 10000.
func (s *Settings) SetTolerance(caller common.Address, bps uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(caller); err != nil {
		return err
	}
	if bps >= domain.BpsDenominator {
		return apperror.New(apperror.CodeInvalidTolerance,
			apperror.WithContext(fmt.Sprintf("%d bps", bps)))
	}
	s.toleranceBps = bps
	return nil
}

// authorize must be called with mu held. A zero operator locks every update.
func (s *Settings) authorize(caller common.Address) error {
	if s.operator == (common.Address{}) || caller != s.operator {
		return apperror.New(apperror.CodeUnauthorizedOperator,
			apperror.WithContext(caller.Hex()))
	}
	return nil
}
