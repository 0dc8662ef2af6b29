package insights

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type memCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemCache() *memCache { return &memCache{data: map[string]string{}} }

func (c *memCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindStaffing, ParseKind("Staffing"))
	assert.Equal(t, KindGeneral, ParseKind(""))
	assert.Equal(t, KindGeneral, ParseKind("poetry"))
}

func TestFallbackRules(t *testing.T) {
	calm := Stats{PeopleWaiting: 2, AvgWaitMinutes: 5, Capacity: 50}
	assert.Equal(t, "• Queue performance is within normal parameters", Fallback(calm, KindGeneral))

	busy := Stats{PeopleWaiting: 45, AvgWaitMinutes: 90, AbandonmentRate: 12.5, Capacity: 50}
	general := Fallback(busy, KindGeneral)
	assert.Contains(t, general, "more service points")
	assert.Contains(t, general, "High abandonment rate")
	assert.Contains(t, general, "approaching capacity")

	assert.Contains(t, Fallback(busy, KindOptimization), "express lanes")
	assert.Contains(t, Fallback(calm, KindOptimization), "acceptable")
	assert.Contains(t, Fallback(busy, KindStaffing), "temporary staff")
	assert.Contains(t, Fallback(calm, KindStaffing), "adequate")
	assert.Contains(t, Fallback(calm, KindCustomer), "position updates")

	unlimited := Stats{PeopleWaiting: 3, AvgWaitMinutes: 6}
	assert.NotContains(t, Fallback(unlimited, KindGeneral), "capacity")
}

func completionServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk_test", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3-8b-8192", body["model"])

		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
			})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateUsesModelAndCaches(t *testing.T) {
	srv := completionServer(t, http.StatusOK, "• Open a second counter")
	cache := newMemCache()
	svc := NewService(NewChatClient(srv.URL+"/", "gsk_test", "llama3-8b-8192", time.Second), cache, time.Minute, time.Second, discard)
	st := Stats{QueueID: "q1", Name: "Coffee", PeopleWaiting: 4}

	res := svc.Generate(context.Background(), st, KindGeneral)
	assert.Equal(t, SourceModel, res.Source)
	assert.Equal(t, "• Open a second counter", res.Insights)
	assert.Contains(t, cache.data, "insights:q1:general")

	again := svc.Generate(context.Background(), st, KindGeneral)
	assert.Equal(t, SourceCache, again.Source)
	assert.Equal(t, res.Insights, again.Insights)
}

func TestGenerateFallsBackOnModelError(t *testing.T) {
	srv := completionServer(t, http.StatusServiceUnavailable, "")
	cache := newMemCache()
	svc := NewService(NewChatClient(srv.URL, "gsk_test", "llama3-8b-8192", time.Second), cache, time.Minute, time.Second, discard)
	st := Stats{QueueID: "q1", PeopleWaiting: 12}

	res := svc.Generate(context.Background(), st, KindStaffing)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, Fallback(st, KindStaffing), res.Insights)
	assert.Empty(t, cache.data, "правила не кэшируются")
}

func TestGenerateWithoutModel(t *testing.T) {
	svc := NewService(nil, nil, time.Minute, time.Second, discard)
	res := svc.Generate(context.Background(), Stats{QueueID: "q1"}, KindCustomer)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, KindCustomer, res.Type)
}

func TestPromptMentionsStats(t *testing.T) {
	text, maxTokens, _ := prompt(Stats{Name: "Bank Desk", PeopleWaiting: 7, AbandonmentRate: 8.5}, KindGeneral)
	assert.Contains(t, text, "Bank Desk")
	assert.Contains(t, text, "7 people")
	assert.Contains(t, text, "8.5%")
	assert.Equal(t, 300, maxTokens)
}
