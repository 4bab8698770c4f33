package normalize

import (
	"sort"
	"strings"

	"awardgraph/pkg/common"
)

const defaultTopicCount = 5

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "are": true, "will": true, "has": true,
	"have": true, "can": true, "its": true, "these": true, "their": true,
	"such": true, "which": true, "into": true, "also": true, "between": true,
	"through": true, "using": true, "used": true, "use": true, "new": true,
	"our": true, "more": true, "other": true, "than": true, "both": true,
	"how": true, "when": true, "where": true, "while": true, "not": true,
	"all": true, "been": true, "being": true, "was": true, "were": true,
	"may": true, "well": true, "based": true, "each": true, "its'": true,
	"project": true, "research": true, "award": true, "study": true,
	"work": true, "results": true, "provide": true, "develop": true,
	"broader": true, "impacts": true, "support": true, "students": true,
	"including": true, "important": true, "understanding": true,
}

// ExtractTopics derives candidate topic labels from an award's abstract and
// optional keyword list. The policy is deterministic: explicit keywords
// carry full weight; abstract terms are scored by frequency, bigrams
// preferred over unigrams, ties broken alphabetically. Swapping in a
// different extraction policy only requires replacing this function.
func ExtractTopics(abstract, keywords string, k int) []common.TopicFragment {
	if k <= 0 {
		k = defaultTopicCount
	}

	topics := make([]common.TopicFragment, 0, k)
	seen := make(map[string]bool)

	for _, kw := range strings.FieldsFunc(keywords, func(r rune) bool { return r == ',' || r == ';' }) {
		label := NameField(kw)
		if label.Key == "" || seen[label.Key] {
			continue
		}
		seen[label.Key] = true
		topics = append(topics, common.TopicFragment{Label: label, Weight: 1.0})
		if len(topics) == k {
			return topics
		}
	}

	tokens := contentTokens(abstract)
	if len(tokens) == 0 {
		return topics
	}

	type candidate struct {
		phrase string
		score  int
	}

	counts := make(map[string]int)
	for i, tok := range tokens {
		counts[tok.text]++
		if i+1 < len(tokens) && tokens[i+1].adjacent(tok) {
			counts[tok.text+" "+tokens[i+1].text] += 2
		}
	}

	candidates := make([]candidate, 0, len(counts))
	for phrase, score := range counts {
		candidates = append(candidates, candidate{phrase: phrase, score: score})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].phrase < candidates[j].phrase
	})

	maxScore := candidates[0].score
	for _, c := range candidates {
		if len(topics) == k {
			break
		}
		if seen[c.phrase] {
			continue
		}
		seen[c.phrase] = true
		topics = append(topics, common.TopicFragment{
			Label:  common.NameField{Raw: c.phrase, Key: c.phrase},
			Weight: float64(c.score) / float64(maxScore),
		})
	}

	return topics
}

type token struct {
	text string
	pos  int
}

func (t token) adjacent(prev token) bool {
	return t.pos == prev.pos+1
}

// contentTokens tokenizes the folded abstract into stopword-free terms,
// keeping original positions so bigram adjacency survives filtering.
func contentTokens(abstract string) []token {
	words := strings.Fields(MatchKey(abstract))
	tokens := make([]token, 0, len(words))
	for i, w := range words {
		if len(w) < 3 || stopwords[w] || isNumeric(w) {
			continue
		}
		tokens = append(tokens, token{text: w, pos: i})
	}
	return tokens
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
