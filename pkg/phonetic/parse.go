package phonetic

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ParseDictionary reads a CMU pronouncing dictionary. Both the modern
// lower-case format ("word AH0 ...") and the legacy upper-case format with
// ";;;" comments are accepted. Alternate pronunciations ("word(2)") and keys
// containing non-letters are skipped; the first pronunciation wins.
func ParseDictionary(r io.Reader) (map[string][]string, error) {
	out := make(map[string][]string, 1<<17)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, ";;;") {
			continue
		}
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		key := strings.ToLower(fields[0])
		if strings.ContainsRune(key, '(') {
			continue
		}
		if NormalizeWord(key) != key {
			continue
		}
		if _, dup := out[key]; dup {
			continue
		}
		phonemes := make([]string, len(fields)-1)
		for i, f := range fields[1:] {
			phonemes[i] = strings.ToUpper(f)
		}
		out[key] = phonemes
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("phonetic: parse dictionary: %w", err)
	}
	return out, nil
}

// ParseFrequencies reads a word list ordered from most to least frequent,
// one word per line, and returns each word's 1-based rank. Later duplicates
// are ignored.
func ParseFrequencies(r io.Reader) (map[string]int, error) {
	out := make(map[string]int, 20000)
	sc := bufio.NewScanner(r)
	rank := 0
	for sc.Scan() {
		w := NormalizeWord(strings.TrimSpace(sc.Text()))
		if w == "" {
			continue
		}
		rank++
		if _, dup := out[w]; !dup {
			out[w] = rank
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("phonetic: parse frequencies: %w", err)
	}
	return out, nil
}
