package ethereum

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/quote-engine/business/quoting/app"
	"github.com/fd1az/quote-engine/internal/apperror"
	"github.com/fd1az/quote-engine/internal/logger"
)

type fakeSub struct {
	errc chan error
	once sync.Once
}

func newFakeSub() *fakeSub { return &fakeSub{errc: make(chan error, 1)} }

func (s *fakeSub) Unsubscribe()      { s.once.Do(func() { close(s.errc) }) }
func (s *fakeSub) Err() <-chan error { return s.errc }

type fakeHeadSource struct {
	heads   []*types.Header
	latest  *types.Header
	pollErr error
}

func (f *fakeHeadSource) SubscribeNewHead(_ context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	go func() {
		for _, h := range f.heads {
			ch <- h
		}
	}()
	return newFakeSub(), nil
}

func (f *fakeHeadSource) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	return f.latest, nil
}

func header(n int64) *types.Header {
	return &types.Header{Number: big.NewInt(n), Time: uint64(time.Now().Unix())}
}

func dialer(sources map[string]HeadSource) Dialer {
	return func(_ context.Context, url string) (HeadSource, error) {
		if src, ok := sources[url]; ok {
			return src, nil
		}
		return nil, errors.New("connection refused")
	}
}

func nextTick(t *testing.T, ticks <-chan app.Tick) app.Tick {
	t.Helper()
	select {
	case tick, ok := <-ticks:
		require.True(t, ok, "tick channel closed")
		return tick
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
		return app.Tick{}
	}
}

func TestHeadTrigger_WebSocket(t *testing.T) {
	ws := &fakeHeadSource{heads: []*types.Header{header(7)}}
	cfg := HeadConfig{WSURL: "ws://node", HTTPURL: "http://node", PollInterval: time.Second, ReconnectDelay: time.Second}
	h, err := NewHeadTrigger(cfg, dialer(map[string]HeadSource{"ws://node": ws}), logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ticks, err := h.Ticks(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), nextTick(t, ticks).Block)
	assert.Equal(t, StateConnected, h.State())
	assert.False(t, h.Status().UsingHTTP)

	_, err = h.Ticks(ctx)
	assert.Error(t, err, "a trigger runs once")

	cancel()
	for range ticks {
	}
	assert.Equal(t, StateDisconnected, h.State())
}

func TestHeadTrigger_HTTPFallback(t *testing.T) {
	httpSrc := &fakeHeadSource{latest: header(42)}
	cfg := HeadConfig{WSURL: "ws://down", HTTPURL: "http://node", PollInterval: 10 * time.Millisecond, ReconnectDelay: time.Minute}
	h, err := NewHeadTrigger(cfg, dialer(map[string]HeadSource{"http://node": httpSrc}), logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks, err := h.Ticks(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), nextTick(t, ticks).Block)

	status := h.Status()
	assert.True(t, status.UsingHTTP)
	assert.Equal(t, uint64(42), status.LastBlock)
}

func TestHeadTrigger_NoEndpoint(t *testing.T) {
	cfg := HeadConfig{WSURL: "ws://down", HTTPURL: "http://down", PollInterval: time.Second}
	h, err := NewHeadTrigger(cfg, dialer(nil), logger.NewNop())
	require.NoError(t, err)

	_, err = h.Ticks(context.Background())
	assert.True(t, apperror.HasCode(err, apperror.CodeEthereumConnectionFailed))
	assert.Equal(t, StateDisconnected, h.State())
}

func TestHeadTrigger_EmitDedupes(t *testing.T) {
	h, err := NewHeadTrigger(HeadConfig{PollInterval: time.Second}, dialer(nil), logger.NewNop())
	require.NoError(t, err)

	out := make(chan app.Tick, 10)
	for _, n := range []int64{1, 2, 2, 1, 3} {
		h.emit(context.Background(), header(n), false, out)
	}
	close(out)

	var got []uint64
	for tick := range out {
		got = append(got, tick.Block)
	}
	assert.Equal(t, []uint64{1, 2, 3}, got)
}

func TestNewHeadTrigger_RejectsZeroPoll(t *testing.T) {
	_, err := NewHeadTrigger(HeadConfig{}, nil, logger.NewNop())
	assert.True(t, apperror.HasCode(err, apperror.CodeConfigurationError))
}
