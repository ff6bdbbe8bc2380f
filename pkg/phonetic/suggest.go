package phonetic

import (
	"sort"

	"github.com/antzucaro/matchr"
)

// minSuggestScore is the Jaro-Winkler floor for a suggestion.
const minSuggestScore = 0.80

// Suggest returns up to limit dictionary words that sound like word, best
// match first. Candidates share a Double Metaphone code with word and are
// ranked by Jaro-Winkler similarity, then by frequency rank. The phonetic
// index is built on first use.
func (s *Store) Suggest(word string, limit int) []string {
	t := s.tbl.Load()
	w := NormalizeWord(word)
	if t == nil || w == "" || limit <= 0 {
		return nil
	}
	t.indexOnce.Do(t.buildIndex)

	type candidate struct {
		word  string
		score float64
		rank  int
	}
	seen := make(map[string]struct{})
	var cands []candidate
	for _, code := range metaphoneCodes(w) {
		for _, c := range t.index[code] {
			if c == w {
				continue
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			score := matchr.JaroWinkler(w, c, false)
			if score < minSuggestScore {
				continue
			}
			cands = append(cands, candidate{word: c, score: score, rank: t.entries[c].FrequencyRank})
		}
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		if cands[i].rank != cands[j].rank {
			return cands[i].rank < cands[j].rank
		}
		return cands[i].word < cands[j].word
	})
	out := make([]string, 0, min(limit, len(cands)))
	for _, c := range cands {
		if len(out) == limit {
			break
		}
		out = append(out, c.word)
	}
	return out
}

func (t *table) buildIndex() {
	t.index = make(map[string][]string, len(t.entries))
	for w := range t.entries {
		for _, code := range metaphoneCodes(w) {
			t.index[code] = append(t.index[code], w)
		}
	}
}

// metaphoneCodes returns the distinct non-empty Double Metaphone codes of w.
func metaphoneCodes(w string) []string {
	p, s := matchr.DoubleMetaphone(w)
	switch {
	case p == "" && s == "":
		return nil
	case s == "" || s == p:
		return []string{p}
	case p == "":
		return []string{s}
	default:
		return []string{p, s}
	}
}
