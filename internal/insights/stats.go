// Package insights формирует текстовые рекомендации по статистике очереди.
//
// Текст генерирует внешняя модель через OpenAI-совместимый API. Любая ошибка
// модели заменяется шаблонными правилами, поэтому Generate не падает из-за
// недоступности провайдера.
package insights

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindGeneral      Kind = "general"
	KindOptimization Kind = "optimization"
	KindCustomer     Kind = "customer"
	KindStaffing     Kind = "staffing"
)

// ParseKind: пустая строка и неизвестные значения дают general.
func ParseKind(s string) Kind {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindOptimization, KindCustomer, KindStaffing:
		return k
	}
	return KindGeneral
}

// Stats — срез показателей очереди, который уходит в подсказку модели.
type Stats struct {
	QueueID         string  `json:"queueId"`
	Name            string  `json:"name"`
	Category        string  `json:"category"`
	PeopleWaiting   int     `json:"peopleWaiting"`
	AvgWaitMinutes  int     `json:"avgWaitTime"`
	ServedToday     int     `json:"servedToday"`
	AbandonmentRate float64 `json:"abandonmentRate"`
	Capacity        int     `json:"capacity"`
	PeakHours       string  `json:"peakHours,omitempty"`
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func capacityText(c int) string {
	if c <= 0 {
		return "unlimited"
	}
	return fmt.Sprint(c)
}

func prompt(s Stats, k Kind) (text string, maxTokens int, temperature float64) {
	switch k {
	case KindOptimization:
		return fmt.Sprintf(`Based on this queue performance data, suggest wait time optimization strategies:

Current metrics:
- Average wait: %d min
- People waiting: %d
- Capacity: %s
- Served in the last 24 hours: %d

Provide specific strategies to reduce wait times. Be practical and implementable.`,
			s.AvgWaitMinutes, s.PeopleWaiting, capacityText(s.Capacity), s.ServedToday), 250, 0.6
	case KindCustomer:
		return fmt.Sprintf(`Analyze customer experience for this queue and suggest improvements:

Queue: %s
Category: %s
Abandonment rate: %.1f%%
Average wait: %d min

Focus on customer satisfaction and retention strategies. Provide actionable recommendations.`,
			s.Name, orDefault(s.Category, "General"), s.AbandonmentRate, s.AvgWaitMinutes), 200, 0.7
	case KindStaffing:
		return fmt.Sprintf(`Based on queue performance, recommend optimal staffing:

Current situation:
- %d people waiting
- %d min average wait
- Peak times: %s
- Service type: %s

Suggest staffing adjustments to optimize service delivery.`,
			s.PeopleWaiting, s.AvgWaitMinutes, orDefault(s.PeakHours, "Various"), orDefault(s.Category, "General")), 200, 0.6
	default:
		return fmt.Sprintf(`Analyze this queue data and provide actionable insights:

Queue: %s
Current waiting: %d people
Average wait time: %d min
Served today: %d
Abandonment rate: %.1f%%
Peak hours: %s

Provide 2-3 specific, actionable recommendations to improve efficiency and customer satisfaction.
Keep it concise and business-focused. Format as bullet points.`,
			s.Name, s.PeopleWaiting, s.AvgWaitMinutes, s.ServedToday, s.AbandonmentRate, orDefault(s.PeakHours, "Not available")), 300, 0.7
	}
}
