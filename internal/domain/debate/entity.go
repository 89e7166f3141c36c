package debate

// Decision is an expert's verdict on a candidate
type Decision string

const (
	Keep Decision = "keep"
	Drop Decision = "drop"
)

// Vote is one expert's opinion of one candidate
type Vote struct {
	ExpertID     string   `json:"expert_id"`
	CandidateKey string   `json:"candidate_key"`
	Decision     Decision `json:"decision"`
	Confidence   float64  `json:"confidence"`
	Rationale    string   `json:"rationale"`
	RiskNote     string   `json:"risk_note,omitempty"`
}

// Record is the council's outcome for one candidate. Weighted is the
// influence weighted vote score; Aggregate is the ranking score, equal to
// Weighted unless arbitration reordered a tie.
type Record struct {
	CandidateKey       string  `json:"candidate_key"`
	Votes              []Vote  `json:"votes"`
	Weighted           float64 `json:"weighted_score"`
	Aggregate          float64 `json:"aggregate_score"`
	ArbitrationApplied bool    `json:"arbitration_applied"`
}

// Counts returns the number of keep and drop votes
func (r Record) Counts() (keep, drop int) {
	for _, v := range r.Votes {
		if v.Decision == Keep {
			keep++
		} else {
			drop++
		}
	}
	return keep, drop
}

// EvenSplit reports exactly half keep and half drop
func (r Record) EvenSplit() bool {
	keep, drop := r.Counts()
	return keep > 0 && keep == drop
}

// Clone copies the vote slice
func (r Record) Clone() Record {
	out := r
	out.Votes = append([]Vote(nil), r.Votes...)
	return out
}
