package circuitbreaker_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/quote-engine/internal/circuitbreaker"
)

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cfg := circuitbreaker.DefaultConfig("test")
	cfg.ConsecutiveFailures = 2
	cfg.Timeout = time.Hour

	var transitions []gobreaker.State
	cfg.OnStateChange = func(name string, from, to gobreaker.State) {
		transitions = append(transitions, to)
	}

	cb := circuitbreaker.New[int](cfg)
	boom := errors.New("rpc down")

	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected rpc error, got %v", i, err)
		}
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", cb.State())
	}

	_, err := cb.Execute(func() (int, error) { return 1, nil })
	if !circuitbreaker.IsOpen(err) {
		t.Errorf("expected open-state rejection, got %v", err)
	}

	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Errorf("expected single transition to open, got %v", transitions)
	}
}

func TestCircuitBreaker_IsSuccessfulIgnoresReverts(t *testing.T) {
	cfg := circuitbreaker.DefaultConfig("reverts")
	cfg.ConsecutiveFailures = 1
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || strings.Contains(err.Error(), "execution reverted")
	}

	cb := circuitbreaker.New[[]byte](cfg)
	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(func() ([]byte, error) { return nil, errors.New("execution reverted") })
	}

	if cb.State() != gobreaker.StateClosed {
		t.Errorf("reverts must not trip the breaker, state=%s", cb.State())
	}
	if cb.Name() != "reverts" {
		t.Errorf("unexpected name %q", cb.Name())
	}
}
