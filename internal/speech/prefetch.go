package speech

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

// Prefetcher synthesizes assistant replies in the background as soon as they
// are persisted, so playback can start without waiting on the API. Clips are
// kept in an LRU cache keyed by message id.
type Prefetcher struct {
	synth   Synthesizer
	cache   *lru.Cache
	ttl     time.Duration
	timeout time.Duration

	mu sync.RWMutex
	wg sync.WaitGroup
}

type cachedAudio struct {
	audio     Audio
	text      string
	expiresAt time.Time
}

// NewPrefetcher caches up to size clips for ttl each.
func NewPrefetcher(synth Synthesizer, size int, ttl time.Duration) (*Prefetcher, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Prefetcher{synth: synth, cache: cache, ttl: ttl, timeout: 60 * time.Second}, nil
}

// AfterReply starts synthesizing msg in the background. Only assistant
// messages are voiced.
func (p *Prefetcher) AfterReply(ctx context.Context, msg *domain.Message) {
	if msg == nil || msg.Role != domain.RoleAssistant {
		return
	}
	id, text := msg.ID, msg.Content
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		if _, err := p.Audio(ctx, id, text); err != nil {
			log.Warn().Err(err).Int64("message_id", id).Msg("speech prefetch failed")
		}
	}()
}

// Audio returns the clip for a message, synthesizing it on a cache miss. A
// cached clip is reused only while its text still matches, so edited
// messages are voiced again.
func (p *Prefetcher) Audio(ctx context.Context, messageID int64, text string) (Audio, error) {
	if a, ok := p.get(messageID, text); ok {
		return a, nil
	}
	a, err := p.synth.Synthesize(ctx, text)
	if err != nil {
		return Audio{}, err
	}
	p.mu.Lock()
	p.cache.Add(messageID, cachedAudio{audio: a, text: text, expiresAt: time.Now().Add(p.ttl)})
	p.mu.Unlock()
	return a, nil
}

// Cached reports whether a fresh clip is held for the message.
func (p *Prefetcher) Cached(messageID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.cache.Peek(messageID)
	return ok && time.Now().Before(v.(cachedAudio).expiresAt)
}

func (p *Prefetcher) get(messageID int64, text string) (Audio, bool) {
	p.mu.RLock()
	v, ok := p.cache.Get(messageID)
	p.mu.RUnlock()
	if !ok {
		return Audio{}, false
	}
	entry := v.(cachedAudio)
	if entry.text != text || time.Now().After(entry.expiresAt) {
		p.mu.Lock()
		p.cache.Remove(messageID)
		p.mu.Unlock()
		return Audio{}, false
	}
	return entry.audio, true
}

// Wait blocks until background prefetches have finished.
func (p *Prefetcher) Wait() { p.wg.Wait() }
