package balance

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/earn-alliance/smartwallet/internal/amount"
	"github.com/earn-alliance/smartwallet/internal/errs"
	"github.com/earn-alliance/smartwallet/internal/log"
	"github.com/earn-alliance/smartwallet/internal/metrics"
)

// Fetcher reads a smart account's token balance in minor units.
type Fetcher interface {
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
}

// Balance is a token amount in minor units.
type Balance struct {
	Amount   *big.Int
	Decimals uint8
}

// String formats the balance for display.
func (b Balance) String() string {
	return amount.Format(b.Amount, b.Decimals)
}

// Poller refreshes a balance on a fixed interval. A failed tick is logged and
// skipped; the last good balance stays in place.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	sink     func(*big.Int)
	metrics  *metrics.Metrics
	logger   *logrus.Entry

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPoller creates a poller that hands every fetched balance to sink.
func NewPoller(fetcher Fetcher, interval time.Duration, sink func(*big.Int), m *metrics.Metrics) *Poller {
	return &Poller{
		fetcher:  fetcher,
		interval: interval,
		sink:     sink,
		metrics:  m,
		logger:   log.Component("balance"),
	}
}

// Start begins polling account, fetching once immediately. It returns false
// and does nothing if the poller is already running or account is empty.
func (p *Poller) Start(ctx context.Context, account common.Address) bool {
	if account == (common.Address{}) {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(ctx, account, p.done)
	p.logger.WithFields(logrus.Fields{"smart_account": account.Hex(), "interval": p.interval}).Debug("balance polling started")
	return true
}

// Stop cancels polling and waits for the loop to exit. No tick runs after
// Stop returns. Stopping an idle poller is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.running = false
	p.mu.Unlock()

	cancel()
	<-done
	p.logger.Debug("balance polling stopped")
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) loop(ctx context.Context, account common.Address, done chan struct{}) {
	defer close(done)
	// The parent ctx may end the loop without Stop; a later Start must work.
	defer func() {
		p.mu.Lock()
		if p.done == done {
			p.running = false
		}
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx, account)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			p.tick(ctx, account)
		}
	}
}

func (p *Poller) tick(ctx context.Context, account common.Address) {
	balance, err := p.fetcher.Balance(ctx, account)
	if ctx.Err() != nil {
		return
	}
	p.metrics.RecordPollTick(err)
	if err != nil {
		p.logger.WithError(errs.Wrap(errs.ErrPollFailed, err, "")).Warn("error polling balance")
		return
	}

	f, _ := new(big.Float).SetInt(balance).Float64()
	p.metrics.SetBalance(f)
	p.sink(balance)
}
