package balance

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingFetcher counts calls and fails on the ticks listed in failOn.
type countingFetcher struct {
	calls  int32
	failOn map[int32]bool
}

func (f *countingFetcher) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.failOn[n] {
		return nil, errors.New("relay timeout")
	}
	return big.NewInt(int64(n) * 1000000), nil
}

type recorder struct {
	mu     sync.Mutex
	values []*big.Int
}

func (r *recorder) set(v *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder) all() []*big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*big.Int(nil), r.values...)
}

var account = common.HexToAddress("0x5C1")

func TestPoller_NoTickAfterStop(t *testing.T) {
	fetcher := &countingFetcher{}
	rec := &recorder{}
	p := NewPoller(fetcher, 5*time.Millisecond, rec.set, nil)

	require.True(t, p.Start(context.Background(), account))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fetcher.calls) >= 3 }, time.Second, time.Millisecond)

	p.Stop()
	assert.False(t, p.Running())
	stopped := atomic.LoadInt32(&fetcher.calls)
	recorded := len(rec.all())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, atomic.LoadInt32(&fetcher.calls))
	assert.Equal(t, recorded, len(rec.all()))
}

func TestPoller_StartIsIdempotent(t *testing.T) {
	p := NewPoller(&countingFetcher{}, time.Hour, func(*big.Int) {}, nil)
	defer p.Stop()

	assert.True(t, p.Start(context.Background(), account))
	assert.False(t, p.Start(context.Background(), account))
	assert.True(t, p.Running())
}

func TestPoller_NoAccountIsNoop(t *testing.T) {
	fetcher := &countingFetcher{}
	p := NewPoller(fetcher, time.Millisecond, func(*big.Int) {}, nil)

	assert.False(t, p.Start(context.Background(), common.Address{}))
	assert.False(t, p.Running())
	p.Stop()
	assert.Zero(t, atomic.LoadInt32(&fetcher.calls))
}

func TestPoller_FailedTickKeepsLooping(t *testing.T) {
	fetcher := &countingFetcher{failOn: map[int32]bool{2: true}}
	rec := &recorder{}
	p := NewPoller(fetcher, 5*time.Millisecond, rec.set, nil)

	p.Start(context.Background(), account)
	require.Eventually(t, func() bool { return len(rec.all()) >= 2 }, time.Second, time.Millisecond)
	p.Stop()

	values := rec.all()
	assert.Equal(t, big.NewInt(1000000), values[0])
	// tick 2 failed and was skipped, tick 3 still delivered
	assert.Equal(t, big.NewInt(3000000), values[1])
}

func TestPoller_RestartAfterStop(t *testing.T) {
	p := NewPoller(&countingFetcher{}, time.Hour, func(*big.Int) {}, nil)

	assert.True(t, p.Start(context.Background(), account))
	p.Stop()
	assert.True(t, p.Start(context.Background(), account))
	p.Stop()
}

func TestPoller_RestartAfterParentCancel(t *testing.T) {
	fetcher := &countingFetcher{}
	p := NewPoller(fetcher, 5*time.Millisecond, func(*big.Int) {}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, p.Start(ctx, account))
	cancel()

	require.Eventually(t, func() bool { return !p.Running() }, time.Second, time.Millisecond)
	require.True(t, p.Start(context.Background(), account))
	defer p.Stop()

	before := atomic.LoadInt32(&fetcher.calls)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fetcher.calls) > before }, time.Second, time.Millisecond)
}

func TestBalanceString(t *testing.T) {
	assert.Equal(t, "10.5", Balance{Amount: big.NewInt(10500000), Decimals: 6}.String())
	assert.Equal(t, "0.00", Balance{Decimals: 6}.String())
}
