package incidents

import "github.com/adityaviki/sentinelops/internal/models"

// Candidate is a group of anomalies destined to become (at most) one
// incident.
type Candidate struct {
	Anomalies []models.Anomaly
}

// GroupAnomalies groups anomalies whose service intersects the
// correlated-events' service set into one shared candidate; anomalies
// outside that set form their own per-service candidate. In the common case
// of one tick producing anomalies across an already-correlated service set,
// this yields exactly one candidate.
func GroupAnomalies(anomalies []models.Anomaly, correlatedEvents []models.CorrelatedEvent) []Candidate {
	if len(anomalies) == 0 {
		return nil
	}

	correlatedServices := make(map[string]struct{}, len(correlatedEvents))
	for _, e := range correlatedEvents {
		correlatedServices[e.Service] = struct{}{}
	}

	var shared []models.Anomaly
	perService := make(map[string][]models.Anomaly)
	var perServiceOrder []string

	for _, a := range anomalies {
		if _, ok := correlatedServices[a.Service]; ok {
			shared = append(shared, a)
			continue
		}
		if _, ok := perService[a.Service]; !ok {
			perServiceOrder = append(perServiceOrder, a.Service)
		}
		perService[a.Service] = append(perService[a.Service], a)
	}

	var candidates []Candidate
	if len(shared) > 0 {
		candidates = append(candidates, Candidate{Anomalies: shared})
	}
	for _, svc := range perServiceOrder {
		candidates = append(candidates, Candidate{Anomalies: perService[svc]})
	}
	return candidates
}
