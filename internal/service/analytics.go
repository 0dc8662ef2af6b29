package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gorm.io/gorm"

	"qline/internal/auth"
	"qline/internal/config"
	"qline/internal/errs"
	"qline/internal/insights"
	"qline/internal/models"
)

// AnalyticsService — сводки для владельцев очередей. Только чтение.
type AnalyticsService struct {
	db     *gorm.DB
	policy config.QueuePolicy
	now    func() time.Time
}

func NewAnalyticsService(db *gorm.DB, policy config.QueuePolicy) *AnalyticsService {
	return &AnalyticsService{db: db, policy: policy, now: time.Now}
}

type DashboardQueue struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Location        string `json:"location"`
	Status          string `json:"status"` // active | inactive
	PeopleWaiting   int    `json:"peopleWaiting"`
	AverageWaitTime int    `json:"averageWaitTime"`
	Capacity        int    `json:"capacity"`
}

type Dashboard struct {
	ActiveQueues       int              `json:"activeQueues"`
	TotalPeopleWaiting int              `json:"totalPeopleWaiting"`
	AverageWaitTime    int              `json:"averageWaitTime"`
	ServedToday        int64            `json:"servedToday"`
	Queues             []DashboardQueue `json:"queues"`
}

func (s *AnalyticsService) Dashboard(ctx context.Context, owner *auth.Identity) (*Dashboard, error) {
	if owner == nil {
		return nil, errs.ErrUnauthorized
	}
	db := s.db.WithContext(ctx)
	var queues []models.Queue
	if err := db.Where("owner_id = ?", owner.UserID).Order("created_at DESC").Find(&queues).Error; err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	ids := make([]string, len(queues))
	for i := range queues {
		ids[i] = queues[i].ID
	}
	counts, err := waitingCounts(db, ids)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{Queues: make([]DashboardQueue, 0, len(queues))}
	for _, q := range queues {
		n := counts[q.ID]
		status := "inactive"
		if q.IsActive {
			status = "active"
			d.ActiveQueues++
		}
		d.TotalPeopleWaiting += n
		d.Queues = append(d.Queues, DashboardQueue{
			ID:              q.ID,
			Name:            q.Name,
			Location:        q.Location,
			Status:          status,
			PeopleWaiting:   n,
			AverageWaitTime: EstimateWait(n, s.policy),
			Capacity:        q.Capacity,
		})
	}
	if d.TotalPeopleWaiting > 0 && len(queues) > 0 {
		d.AverageWaitTime = int(math.Round(float64(d.TotalPeopleWaiting*s.policy.PerPersonMinutes) / float64(len(queues))))
	}

	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	err = db.Model(&models.QueueEntry{}).
		Joins("JOIN queues ON queues.id = queue_entries.queue_id").
		Where("queues.owner_id = ? AND queue_entries.status = ? AND queue_entries.served_at >= ?",
			owner.UserID, models.StatusServed, midnight.UTC()).
		Count(&d.ServedToday).Error
	if err != nil {
		return nil, fmt.Errorf("count served today: %w", err)
	}
	return d, nil
}

var timeRanges = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

// ParseTimeRange понимает 24h, 7d, 30d, 90d; пустая строка — 7d.
func ParseTimeRange(s string) (time.Duration, error) {
	if s == "" {
		s = "7d"
	}
	d, ok := timeRanges[s]
	if !ok {
		return 0, fmt.Errorf("%w: timeRange должен быть 24h, 7d, 30d или 90d", errs.ErrValidation)
	}
	return d, nil
}

type DayCount struct {
	Date  string `json:"date"` // 2006-01-02, UTC
	Count int    `json:"count"`
}

type QueueStats struct {
	TotalServed     int        `json:"totalServed"`
	AvgWaitMinutes  int        `json:"avgWaitTime"`
	AbandonmentRate float64    `json:"abandonmentRate"` // проценты, один знак после запятой
	TotalJoined     int        `json:"totalJoined"`
	PeakHour        string     `json:"peakHour,omitempty"`
	DailyTraffic    []DayCount `json:"dailyTraffic"`
}

// QueueAnalytics считает показатели очереди за период. Только для владельца.
func (s *AnalyticsService) QueueAnalytics(ctx context.Context, queueID string, caller *auth.Identity, timeRange string) (*QueueStats, error) {
	window, err := ParseTimeRange(timeRange)
	if err != nil {
		return nil, err
	}
	q, err := s.ownedQueue(ctx, queueID, caller)
	if err != nil {
		return nil, err
	}
	return s.stats(ctx, q.ID, s.now().UTC().Add(-window))
}

func (s *AnalyticsService) ownedQueue(ctx context.Context, queueID string, caller *auth.Identity) (*models.Queue, error) {
	var q models.Queue
	err := s.db.WithContext(ctx).First(&q, "id = ?", queueID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrQueueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	if err := requireOwner(&q, caller); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *AnalyticsService) stats(ctx context.Context, queueID string, since time.Time) (*QueueStats, error) {
	db := s.db.WithContext(ctx)
	st := &QueueStats{DailyTraffic: []DayCount{}}

	var served []models.QueueEntry
	err := db.Select("joined_at", "served_at").
		Where("queue_id = ? AND status = ? AND served_at >= ?", queueID, models.StatusServed, since).
		Find(&served).Error
	if err != nil {
		return nil, fmt.Errorf("load served: %w", err)
	}
	st.TotalServed = len(served)
	if len(served) > 0 {
		var total time.Duration
		for _, e := range served {
			if e.ServedAt != nil {
				total += e.ServedAt.Sub(e.JoinedAt)
			}
		}
		st.AvgWaitMinutes = int(math.Round(total.Minutes() / float64(len(served))))
	}

	var joined []models.QueueEntry
	err = db.Select("status", "joined_at").
		Where("queue_id = ? AND joined_at >= ?", queueID, since).
		Find(&joined).Error
	if err != nil {
		return nil, fmt.Errorf("load joined: %w", err)
	}
	st.TotalJoined = len(joined)

	left := 0
	days := map[string]int{}
	var hours [24]int
	for _, e := range joined {
		if e.Status == models.StatusLeft {
			left++
		}
		t := e.JoinedAt.UTC()
		days[t.Format(time.DateOnly)]++
		hours[t.Hour()]++
	}
	if len(joined) > 0 {
		st.AbandonmentRate = math.Round(float64(left)/float64(len(joined))*1000) / 10
		peak := 0
		for h := range hours {
			if hours[h] > hours[peak] {
				peak = h
			}
		}
		st.PeakHour = fmt.Sprintf("%02d:00-%02d:00 UTC", peak, (peak+1)%24)
	}
	for d, n := range days {
		st.DailyTraffic = append(st.DailyTraffic, DayCount{Date: d, Count: n})
	}
	sort.Slice(st.DailyTraffic, func(i, j int) bool { return st.DailyTraffic[i].Date < st.DailyTraffic[j].Date })
	return st, nil
}

// InsightStats собирает данные очереди для подсказок: текущая загрузка и показатели за сутки.
func (s *AnalyticsService) InsightStats(ctx context.Context, queueID string, caller *auth.Identity) (insights.Stats, error) {
	q, err := s.ownedQueue(ctx, queueID, caller)
	if err != nil {
		return insights.Stats{}, err
	}
	counts, err := waitingCounts(s.db.WithContext(ctx), []string{q.ID})
	if err != nil {
		return insights.Stats{}, err
	}
	day, err := s.stats(ctx, q.ID, s.now().UTC().Add(-24*time.Hour))
	if err != nil {
		return insights.Stats{}, err
	}
	waiting := counts[q.ID]
	return insights.Stats{
		QueueID:         q.ID,
		Name:            q.Name,
		Category:        q.Category,
		PeopleWaiting:   waiting,
		AvgWaitMinutes:  EstimateWait(waiting, s.policy),
		ServedToday:     day.TotalServed,
		AbandonmentRate: day.AbandonmentRate,
		Capacity:        q.Capacity,
		PeakHours:       day.PeakHour,
	}, nil
}

// MyQueueView — текущая очередь пользователя.
type MyQueueView struct {
	ID       string         `json:"id"` // id очереди
	Name     string         `json:"name"`
	Location string         `json:"location"`
	EntryID  string         `json:"entryId"`
	Position int            `json:"position"`
	WaitTime int            `json:"waitTime"`
	JoinedAt time.Time      `json:"joinedAt"`
	UserData map[string]any `json:"userData"`
}

// MyQueue возвращает последнюю ожидающую запись пользователя или nil.
func (s *AnalyticsService) MyQueue(ctx context.Context, caller *auth.Identity) (*MyQueueView, error) {
	if caller == nil {
		return nil, errs.ErrUnauthorized
	}
	var e models.QueueEntry
	err := s.db.WithContext(ctx).Preload("Queue").
		Where("user_id = ? AND status = ?", caller.UserID, models.StatusWaiting).
		Order("joined_at DESC").
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load my entry: %w", err)
	}
	v := &MyQueueView{
		ID:       e.QueueID,
		EntryID:  e.ID,
		Position: e.Position,
		WaitTime: e.Position * s.policy.PerPersonMinutes,
		JoinedAt: e.JoinedAt,
		UserData: e.UserData,
	}
	if e.Queue != nil {
		v.Name, v.Location = e.Queue.Name, e.Queue.Location
	}
	return v, nil
}
