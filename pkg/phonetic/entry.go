package phonetic

import (
	"strings"
	"unicode"
)

// vowels is the set of CMU vowel phonemes (stress digit stripped). Every
// vowel-class phoneme forms the nucleus of exactly one syllable.
var vowels = map[string]struct{}{
	"AA": {}, "AE": {}, "AH": {}, "AO": {}, "AW": {},
	"AY": {}, "EH": {}, "ER": {}, "EY": {}, "IH": {},
	"IY": {}, "OW": {}, "OY": {}, "UH": {}, "UW": {},
}

// canonicalStress holds the default stress pattern by syllable count, used
// when no dictionary stress digits are available.
var canonicalStress = map[int][]int{
	1: {1},
	2: {1, 0},
	3: {0, 1, 0},
	4: {0, 1, 0, 0},
	5: {0, 1, 0, 0, 0},
}

// Entry is one read-only dictionary record.
type Entry struct {
	// Word is the lower-case alphabetic key.
	Word string

	// Phonemes are CMU symbols, vowels carrying a stress digit (0, 1 or 2).
	Phonemes []string

	// Syllables is the number of vowel-class phonemes. Always equal to
	// len(Stress).
	Syllables int

	// Stress holds one value per syllable: 1 for primary stress, 0 otherwise.
	Stress []int

	// FrequencyRank is the 1-based position in the frequency list. Higher
	// means rarer; words missing from the list rank after every listed word.
	FrequencyRank int
}

// NewEntry derives syllable count and stress pattern from phonemes.
func NewEntry(word string, phonemes []string, rank int) Entry {
	var stress []int
	for _, p := range phonemes {
		if !IsVowel(p) {
			continue
		}
		if strings.HasSuffix(p, "1") {
			stress = append(stress, 1)
		} else {
			stress = append(stress, 0)
		}
	}
	return Entry{
		Word:          word,
		Phonemes:      phonemes,
		Syllables:     len(stress),
		Stress:        stress,
		FrequencyRank: rank,
	}
}

// HasPrimaryStress reports whether any phoneme carries primary stress.
func (e Entry) HasPrimaryStress() bool {
	for _, s := range e.Stress {
		if s == 1 {
			return true
		}
	}
	return false
}

// BasePhoneme strips the stress digit from a phoneme symbol.
func BasePhoneme(p string) string {
	return strings.TrimRightFunc(p, unicode.IsDigit)
}

// IsVowel reports whether p is a vowel-class phoneme.
func IsVowel(p string) bool {
	_, ok := vowels[BasePhoneme(p)]
	return ok
}

// CanonicalStress returns the default stress pattern for a word with n
// syllables. Words longer than the table stress the second syllable.
func CanonicalStress(n int) []int {
	if n <= 0 {
		return nil
	}
	if p, ok := canonicalStress[n]; ok {
		return append([]int(nil), p...)
	}
	p := make([]int, n)
	p[1] = 1
	return p
}

// NormalizeWord lower-cases w and strips everything but letters. It returns
// the empty string when nothing alphabetic remains.
func NormalizeWord(w string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(w) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Words splits text into normalised dictionary keys, dropping tokens with no
// letters.
func Words(text string) []string {
	var out []string
	for _, tok := range strings.Fields(text) {
		if w := NormalizeWord(tok); w != "" {
			out = append(out, w)
		}
	}
	return out
}
