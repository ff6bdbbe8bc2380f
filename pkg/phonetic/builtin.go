package phonetic

// builtinDictionary is served when the bulk dictionary cannot be loaded.
var builtinDictionary = map[string][]string{
	"hello":         {"HH", "AH0", "L", "OW1"},
	"world":         {"W", "ER1", "L", "D"},
	"water":         {"W", "AO1", "T", "ER0"},
	"computer":      {"K", "AH0", "M", "P", "Y", "UW1", "T", "ER0"},
	"important":     {"IH2", "M", "P", "AO1", "R", "T", "AH0", "N", "T"},
	"beautiful":     {"B", "Y", "UW1", "T", "AH0", "F", "AH0", "L"},
	"pronunciation": {"P", "R", "AH0", "N", "AH2", "N", "S", "IY0", "EY1", "SH", "AH0", "N"},
	"education":     {"EH2", "JH", "AH0", "K", "EY1", "SH", "AH0", "N"},
	"technology":    {"T", "EH0", "K", "N", "AA1", "L", "AH0", "JH", "IY0"},
	"conversation":  {"K", "AA2", "N", "V", "ER0", "S", "EY1", "SH", "AH0", "N"},
}

// builtinFrequencies is the fallback frequency list, most frequent first.
var builtinFrequencies = []string{
	"the", "be", "to", "of", "and", "a", "in", "that", "have", "i",
	"it", "for", "not", "on", "with", "he", "as", "you", "do", "at",
	"hello", "world", "water", "computer", "important", "beautiful",
}

func builtinRanks() map[string]int {
	out := make(map[string]int, len(builtinFrequencies))
	for i, w := range builtinFrequencies {
		out[w] = i + 1
	}
	return out
}

func builtinPhonemes() map[string][]string {
	out := make(map[string][]string, len(builtinDictionary))
	for w, p := range builtinDictionary {
		out[w] = append([]string(nil), p...)
	}
	return out
}
