package inputguard

// InjectionReport grades a payload against the weighted catalogue instead of
// binary-blocking it. Callers pick their own threshold on Confidence.
type InjectionReport struct {
	Detected        bool     `json:"detected"`
	Confidence      float64  `json:"confidence"`
	MatchedPatterns []string `json:"matched_patterns,omitempty"`
}

// DetectInjection scores the payload against every pattern in the catalogue.
// Confidence is the capped sum of matched pattern weights, so stacked weak
// signals can reach the same confidence as one strong one.
func (g *Guard) DetectInjection(text string) InjectionReport {
	var report InjectionReport
	for _, p := range blockedPatterns {
		if p.re.MatchString(text) {
			report.MatchedPatterns = append(report.MatchedPatterns, p.name)
			report.Confidence += p.weight
		}
	}

	if report.Confidence > 1 {
		report.Confidence = 1
	}
	report.Detected = len(report.MatchedPatterns) > 0
	return report
}
