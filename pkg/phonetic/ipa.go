package phonetic

import (
	"strings"

	"github.com/MrWong99/prosodia/pkg/types"
)

var ipaVowels = map[string]string{
	"AA": "ɑ", "AE": "æ", "AH": "ʌ", "AO": "ɔ", "AW": "aʊ",
	"AY": "aɪ", "EH": "ɛ", "ER": "ɝ", "EY": "eɪ", "IH": "ɪ",
	"IY": "i", "OW": "oʊ", "OY": "ɔɪ", "UH": "ʊ", "UW": "u",
}

var ipaConsonants = map[string]string{
	"B": "b", "CH": "tʃ", "D": "d", "DH": "ð", "F": "f",
	"G": "g", "HH": "h", "JH": "dʒ", "K": "k", "L": "l",
	"M": "m", "N": "n", "NG": "ŋ", "P": "p", "R": "r",
	"S": "s", "SH": "ʃ", "T": "t", "TH": "θ", "V": "v",
	"W": "w", "Y": "j", "Z": "z", "ZH": "ʒ",
}

// difficultPhonemes are sounds learners commonly struggle with: dental
// fricatives, rhotics, laterals and affricates.
var difficultPhonemes = map[string]struct{}{
	"TH": {}, "DH": {}, "R": {}, "L": {}, "ZH": {}, "CH": {}, "JH": {}, "NG": {},
}

// IPA renders a CMU phoneme sequence as a slash-delimited IPA transcription.
// Primary and secondary stress marks precede the stressed vowel. Unknown
// symbols are lower-cased and passed through.
func IPA(phonemes []string) string {
	var b strings.Builder
	b.WriteByte('/')
	for _, p := range phonemes {
		base := BasePhoneme(p)
		if v, ok := ipaVowels[base]; ok {
			switch {
			case strings.HasSuffix(p, "1"):
				b.WriteString("ˈ")
			case strings.HasSuffix(p, "2"):
				b.WriteString("ˌ")
			}
			b.WriteString(v)
			continue
		}
		if c, ok := ipaConsonants[base]; ok {
			b.WriteString(c)
			continue
		}
		b.WriteString(strings.ToLower(base))
	}
	b.WriteByte('/')
	return b.String()
}

// Difficulty grades how hard word is to pronounce. The score adds the
// syllable count (capped at 4), two points per difficult phoneme, one point
// per adjacent consonant pair and one point for words longer than eight
// letters.
func Difficulty(word string, phonemes []string) types.Difficulty {
	score := 0
	syllables := 0
	for _, p := range phonemes {
		if IsVowel(p) {
			syllables++
		}
		if _, ok := difficultPhonemes[BasePhoneme(p)]; ok {
			score += 2
		}
	}
	score += min(syllables, 4)
	for i := 0; i+1 < len(phonemes); i++ {
		if !IsVowel(phonemes[i]) && !IsVowel(phonemes[i+1]) {
			score++
		}
	}
	if len(word) > 8 {
		score++
	}

	switch {
	case score <= 2:
		return types.DifficultyEasy
	case score <= 4:
		return types.DifficultyMedium
	case score <= 6:
		return types.DifficultyHard
	default:
		return types.DifficultyVeryHard
	}
}
