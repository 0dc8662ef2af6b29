package insights

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

type Source string

const (
	SourceModel    Source = "ai"
	SourceFallback Source = "fallback"
	SourceCache    Source = "cache"
)

type Result struct {
	Insights    string    `json:"insights"`
	Type        Kind      `json:"type"`
	Source      Source    `json:"source"`
	QueueData   Stats     `json:"queueData"`
	GeneratedAt time.Time `json:"timestamp"`
}

// Service выбирает источник рекомендаций: кэш, модель или правила.
type Service struct {
	llm     Completer
	cache   Cache
	ttl     time.Duration
	timeout time.Duration
	log     *slog.Logger
}

// NewService: llm и cache могут быть nil — тогда используются только правила и без кэша.
func NewService(llm Completer, cache Cache, ttl, timeout time.Duration, log *slog.Logger) *Service {
	return &Service{llm: llm, cache: cache, ttl: ttl, timeout: timeout, log: log.With("component", "insights")}
}

func (s *Service) Generate(ctx context.Context, st Stats, k Kind) Result {
	key := cacheKey(st.QueueID, k)
	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, key); err != nil {
			s.log.Warn("Ошибка чтения кэша подсказок", "key", key, "error", err)
		} else if ok {
			var cached Result
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				cached.Source = SourceCache
				return cached
			}
		}
	}

	res := Result{Type: k, QueueData: st, GeneratedAt: time.Now().UTC()}
	res.Insights, res.Source = s.complete(ctx, st, k)

	if s.cache != nil && res.Source == SourceModel {
		if b, err := json.Marshal(res); err == nil {
			if err := s.cache.Set(ctx, key, string(b), s.ttl); err != nil {
				s.log.Warn("Ошибка записи кэша подсказок", "key", key, "error", err)
			}
		}
	}
	return res
}

func (s *Service) complete(ctx context.Context, st Stats, k Kind) (string, Source) {
	if s.llm == nil {
		return Fallback(st, k), SourceFallback
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, maxTokens, temperature := prompt(st, k)
	out, err := s.llm.Complete(ctx, text, CompleteOptions{Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		s.log.Warn("Модель недоступна, используем правила", "type", k, "error", err)
		return Fallback(st, k), SourceFallback
	}
	return out, SourceModel
}
