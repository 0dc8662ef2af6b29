package insights

import "strings"

// Fallback — рекомендации по простым правилам, когда модель недоступна.
func Fallback(s Stats, k Kind) string {
	switch k {
	case KindOptimization:
		if s.AvgWaitMinutes > 20 {
			return "• Implement express lanes for quick services\n• Add self-service options where possible\n• Consider appointment scheduling for non-urgent services"
		}
		return "• Current wait times are acceptable\n• Monitor peak hours for potential optimization"
	case KindCustomer:
		return "• Provide regular position updates to customers\n• Offer amenities during wait time\n• Implement feedback collection system"
	case KindStaffing:
		if s.PeopleWaiting > 10 {
			return "• Consider adding temporary staff during peak periods\n• Cross-train employees for flexibility"
		}
		return "• Current staffing appears adequate\n• Monitor for seasonal variations"
	}

	var out []string
	if s.AvgWaitMinutes > 15 {
		out = append(out, "• Consider adding more service points during peak hours to reduce wait times")
	}
	if s.AbandonmentRate > 10 {
		out = append(out, "• High abandonment rate detected - implement queue position notifications and estimated wait times")
	}
	if s.Capacity > 0 && float64(s.PeopleWaiting) > float64(s.Capacity)*0.8 {
		out = append(out, "• Queue approaching capacity - consider implementing a virtual waiting system")
	}
	if len(out) == 0 {
		return "• Queue performance is within normal parameters"
	}
	return strings.Join(out, "\n")
}
