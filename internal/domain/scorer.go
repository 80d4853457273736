package domain

// Financials are the numeric indicators handed to the scorer.
type Financials struct {
	PER             float64 `json:"per"`
	PBR             float64 `json:"pbr"`
	ROE             float64 `json:"roe"`
	OperatingMargin float64 `json:"operating_margin"`
	DebtRatio       float64 `json:"debt_ratio"`
	RevenueGrowth   float64 `json:"revenue_growth"`
}

// Subject is one entity submitted to the external scorer.
type Subject struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Financials  Financials `json:"financials"`
	NewsSummary string     `json:"news_summary,omitempty"`
	Trend       string     `json:"trend,omitempty"`
}

// Score is the structured verdict for one subject.
type Score struct {
	SubjectID string  `json:"id"`
	Name      string  `json:"name"`
	Value     float64 `json:"score"`
	Verdict   string  `json:"verdict"`
	Rationale string  `json:"rationale"`
}

// ScoreFailure records why a subject could not be scored.
type ScoreFailure struct {
	SubjectID string `json:"id"`
	Name      string `json:"name"`
	Error     string `json:"error"`
}
