package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"group_chat_client/internal/chat/domain"
	"group_chat_client/internal/chat/repository"
	"group_chat_client/pkg/logger"
	"group_chat_client/pkg/metrics"

	"go.uber.org/zap"
)

// Poller polling fallback: re-fetch the newest page on an interval and emit
// what is newer than the watermark
type Poller struct {
	fetcher  repository.MessageFetcher
	identity repository.IdentityProvider
	interval time.Duration
	limit    int

	initialized atomic.Bool
	inFlight    atomic.Bool

	mu             sync.Mutex
	stopped        bool
	cancel         context.CancelFunc
	done           chan struct{}
	conversationID string
	watermark      func() time.Time
	onNew          func([]domain.Message)
}

// NewPoller create a Poller
func NewPoller(fetcher repository.MessageFetcher, identity repository.IdentityProvider, interval time.Duration, limit int) *Poller {
	return &Poller{
		fetcher:  fetcher,
		identity: identity,
		interval: interval,
		limit:    limit,
	}
}

// MarkInitialized open the gate once the watermark reflects the first page
func (p *Poller) MarkInitialized() {
	p.initialized.Store(true)
}

// Start begin polling conversationID. The watermark is read on every tick.
// Start after Stop is a no-op.
func (p *Poller) Start(conversationID string, watermark func() time.Time, onNew func([]domain.Message)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.conversationID = conversationID
	p.watermark = watermark
	p.onNew = onNew

	logger.Log.Info("polling fallback started",
		zap.String("conversation_id", conversationID),
		zap.Duration("interval", p.interval),
	)
	go p.run(ctx, p.done)
}

// Stop stop polling and wait for the loop to exit; the poller cannot be restarted
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running report whether the poller is started
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = p.pollOnce(ctx)
			}()
		}
	}
}

// pollOnce one tick; returns how many messages were emitted
func (p *Poller) pollOnce(ctx context.Context) (int, error) {
	if !p.initialized.Load() {
		metrics.PollTicks.WithLabelValues(metrics.ResultSkipped).Inc()
		return 0, nil
	}
	if p.identity.CurrentIdentity() == nil {
		metrics.PollTicks.WithLabelValues(metrics.ResultSkipped).Inc()
		return 0, nil
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		logger.Log.Debug("poll tick skipped, previous fetch still running")
		metrics.PollTicks.WithLabelValues(metrics.ResultSkipped).Inc()
		return 0, nil
	}
	defer p.inFlight.Store(false)

	p.mu.Lock()
	conversationID, watermark, onNew := p.conversationID, p.watermark, p.onNew
	p.mu.Unlock()
	if watermark == nil {
		return 0, nil
	}

	page, err := p.fetcher.FetchPage(ctx, conversationID, p.limit, "")
	if err != nil {
		if ctx.Err() == nil {
			logger.Log.Warn("poll tick failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
		metrics.PollTicks.WithLabelValues(metrics.ResultError).Inc()
		return 0, err
	}

	mark := watermark()
	fresh := make([]domain.Message, 0, len(page.Messages))
	for _, m := range page.Messages {
		if m.CreatedAt.After(mark) {
			fresh = append(fresh, m)
		}
	}
	if len(fresh) == 0 {
		metrics.PollTicks.WithLabelValues(metrics.ResultEmpty).Inc()
		return 0, nil
	}

	metrics.PollTicks.WithLabelValues(metrics.ResultOK).Inc()
	logger.Log.Debug("poll found new messages", zap.String("conversation_id", conversationID), zap.Int("count", len(fresh)))
	if onNew != nil && ctx.Err() == nil {
		onNew(fresh)
	}
	return len(fresh), nil
}
