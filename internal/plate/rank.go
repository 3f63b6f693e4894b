package plate

// Scoring coefficients for Score. Keep these as the single source of the
// ranking heuristic.
const (
	FormatBonus      = 0.60
	LengthBonus      = 0.30
	DeviationPenalty = 0.05
	ShortPenalty     = 0.50

	IdealLength    = 7
	PreferredMin   = 6
	PreferredMax   = 8
	shortThreshold = MinLength
)

// DefaultDenylist holds country-band artifacts that are never plates.
var DefaultDenylist = []string{"PL", "POL", "EU"}

// Candidate is a single (text, confidence) reading from a recognizer.
type Candidate struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Ranker selects the most plate-like candidate. The zero value uses no
// denylist; use NewRanker or DefaultRanker for the standard one.
type Ranker struct {
	deny map[string]struct{}
}

// DefaultRanker discards DefaultDenylist tokens.
var DefaultRanker = NewRanker(DefaultDenylist...)

// NewRanker returns a Ranker discarding the given tokens. Tokens are
// normalized before comparison.
func NewRanker(denylist ...string) *Ranker {
	r := &Ranker{deny: make(map[string]struct{}, len(denylist))}
	for _, d := range denylist {
		if n := Normalize(d); n != "" {
			r.deny[n] = struct{}{}
		}
	}
	return r
}

// Score returns the plate-likeness score of an already normalized candidate.
func Score(c Candidate) float64 {
	n := len(c.Text)
	s := c.Confidence
	if Valid(c.Text) {
		s += FormatBonus
	}
	if n >= PreferredMin && n <= PreferredMax {
		s += LengthBonus
	}
	dev := n - IdealLength
	if dev < 0 {
		dev = -dev
	}
	s -= DeviationPenalty * float64(dev)
	if n < shortThreshold {
		s -= ShortPenalty
	}
	return s
}

// PickBest normalizes every candidate, drops empty and denylisted texts, and
// returns the highest scoring one. Ties keep the earliest candidate. The
// returned candidate carries the normalized text and its original confidence.
func (r *Ranker) PickBest(cands []Candidate) (Candidate, bool) {
	var (
		best      Candidate
		bestScore float64
		found     bool
	)
	for _, c := range cands {
		t := Normalize(c.Text)
		if t == "" {
			continue
		}
		if _, denied := r.deny[t]; denied {
			continue
		}
		nc := Candidate{Text: t, Confidence: c.Confidence}
		sc := Score(nc)
		if !found || sc > bestScore {
			best, bestScore, found = nc, sc, true
		}
	}
	return best, found
}

// PickBest ranks cands with DefaultRanker.
func PickBest(cands []Candidate) (Candidate, bool) {
	return DefaultRanker.PickBest(cands)
}
