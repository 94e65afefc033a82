package detection

import "sort"

// AnomalyStats summarizes a scored batch for the persistence and
// reporting collaborators.
type AnomalyStats struct {
	Total            int                `json:"total"`
	CriticalCount    int                `json:"critical_count"` // risk >= 9
	HighCount        int                `json:"high_count"`     // [7,9)
	MediumCount      int                `json:"medium_count"`   // [4,7)
	LowCount         int                `json:"low_count"`      // < 4
	AverageRiskScore float64            `json:"average_risk_score"`
	TopAnomalyTypes  []AnomalyTypeCount `json:"top_anomaly_types"`
}

// AnomalyTypeCount pairs an anomaly type with its frequency.
type AnomalyTypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

const topTypeLimit = 5

// Stats aggregates anomalies into severity buckets, an average risk
// score, and the five most frequent anomaly types.
func Stats(anomalies []Anomaly) AnomalyStats {
	stats := AnomalyStats{Total: len(anomalies)}
	if len(anomalies) == 0 {
		return stats
	}

	var sum float64
	byType := make(map[string]int)
	for _, a := range anomalies {
		sum += a.RiskScore
		byType[a.AnomalyType]++

		switch {
		case a.RiskScore >= CriticalRiskScore:
			stats.CriticalCount++
		case a.RiskScore >= HighRiskScore:
			stats.HighCount++
		case a.RiskScore >= AnomalyThreshold:
			stats.MediumCount++
		default:
			stats.LowCount++
		}
	}
	stats.AverageRiskScore = sum / float64(len(anomalies))

	for typ, count := range byType {
		stats.TopAnomalyTypes = append(stats.TopAnomalyTypes, AnomalyTypeCount{Type: typ, Count: count})
	}
	sort.Slice(stats.TopAnomalyTypes, func(i, j int) bool {
		if stats.TopAnomalyTypes[i].Count != stats.TopAnomalyTypes[j].Count {
			return stats.TopAnomalyTypes[i].Count > stats.TopAnomalyTypes[j].Count
		}
		return stats.TopAnomalyTypes[i].Type < stats.TopAnomalyTypes[j].Type
	})
	if len(stats.TopAnomalyTypes) > topTypeLimit {
		stats.TopAnomalyTypes = stats.TopAnomalyTypes[:topTypeLimit]
	}

	return stats
}

// SortByRisk orders anomalies by risk score descending, in place.
func SortByRisk(anomalies []Anomaly) {
	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].RiskScore > anomalies[j].RiskScore
	})
}
