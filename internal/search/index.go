// Package search provides a small, deterministic, concurrency-safe in-memory
// index for fuzzy plate lookup. Operators use it to find an open session when
// the plate they type (or the one a camera read) differs from the stored one
// by a character or two.
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options (Option pattern)
//   - Immutable, read-only index after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (stable order for ties)
//
// Scoring uses Jaccard similarity between the character n-gram sets of the
// query and each plate: score = |Q ∩ P| / |Q ∪ P|. Plates are normalized
// with plate.Normalize and, unless disabled, folded so that the letters OCR
// confuses with digits compare equal to those digits.
package search

import (
	"sort"
	"strings"

	"github.com/tbourn/parking-alpr/internal/plate"
)

// Entry is one indexed plate with the ledger row it came from.
type Entry struct {
	EventID int64
	Plate   string
}

// Result is a ranked match with its similarity score.
type Result struct {
	EventID int64   `json:"event_id"`
	Plate   string  `json:"plate"`
	Score   float64 `json:"score"`
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	gram     int
	minScore float64
	fold     bool
	maxDocs  int
}

func defaultConfig() config {
	return config{
		gram:     2,
		minScore: 0.2,
		fold:     true,
		maxDocs:  0,
	}
}

// WithGramSize sets the n-gram length. Values below 1 are ignored.
func WithGramSize(n int) Option {
	return func(c *config) {
		if n >= 1 {
			c.gram = n
		}
	}
}

// WithMinScore drops results scoring below s. Values outside [0,1] are ignored.
func WithMinScore(s float64) Option {
	return func(c *config) {
		if s >= 0 && s <= 1 {
			c.minScore = s
		}
	}
}

// WithConfusableFolding toggles O/I/Z/S/B folding.
func WithConfusableFolding(on bool) Option {
	return func(c *config) { c.fold = on }
}

func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	entry Entry
	key   string
	grams map[string]struct{}
}

type index struct {
	cfg  config
	docs []doc
}

// NewPlateIndex builds an Index over entries. Entries whose plate normalizes
// to the empty string are skipped.
func NewPlateIndex(entries []Entry, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	docs := make([]doc, 0, len(entries))
	for _, e := range entries {
		key := searchKey(e.Plate, cfg.fold)
		if key == "" {
			continue
		}
		docs = append(docs, doc{entry: e, key: key, grams: grams(key, cfg.gram)})
		if cfg.maxDocs > 0 && len(docs) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: docs}
}

// TopK returns up to k best-matching plates. An exact key match always
// scores 1. k <= 0 defaults to 5.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 {
		return nil
	}
	key := searchKey(q, i.cfg.fold)
	if key == "" {
		return nil
	}
	if k <= 0 {
		k = 5
	}
	qGrams := grams(key, i.cfg.gram)

	buf := make([]Result, 0, min(k*4, len(i.docs)))
	for _, d := range i.docs {
		var score float64
		if d.key == key {
			score = 1
		} else {
			over := overlap(qGrams, d.grams)
			if over == 0 {
				continue
			}
			score = float64(over) / float64(len(qGrams)+len(d.grams)-over)
		}
		if score < i.cfg.minScore || score <= 0 {
			continue
		}
		buf = append(buf, Result{EventID: d.entry.EventID, Plate: d.entry.Plate, Score: score})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		if buf[a].Plate != buf[b].Plate {
			return buf[a].Plate < buf[b].Plate
		}
		return buf[a].EventID > buf[b].EventID
	})

	if k > len(buf) {
		k = len(buf)
	}
	return buf[:k]
}

// ----------------------------------------------------------------------------
// Helpers

var folder = strings.NewReplacer(
	"O", "0",
	"I", "1",
	"Z", "2",
	"S", "5",
	"B", "8",
)

func searchKey(s string, fold bool) string {
	s = plate.Normalize(s)
	if fold {
		s = folder.Replace(s)
	}
	return s
}

// grams returns the set of n-grams of s. Strings shorter than n yield
// themselves as the single gram.
func grams(s string, n int) map[string]struct{} {
	r := []rune(s)
	if len(r) <= n {
		return map[string]struct{}{s: {}}
	}
	out := make(map[string]struct{}, len(r)-n+1)
	for i := 0; i+n <= len(r); i++ {
		out[string(r[i:i+n])] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
