package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"awardgraph/pkg/common"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// CleanText collapses whitespace and trims the input without changing case.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// MatchKey produces the normalized matching key for a name-like value:
// diacritics folded, lowercased, punctuation stripped, whitespace collapsed.
// Entity resolution compares keys, never raw values.
func MatchKey(s string) string {
	folded, _, err := transform.String(diacriticFolder, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r) || r == '-' || r == '/':
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NameField builds the raw/key pair for a name-like value.
func NameField(s string) common.NameField {
	return common.NameField{Raw: CleanText(s), Key: MatchKey(s)}
}

// Normalize maps one raw award record into a typed RecordFragment. It is a
// pure function and never fails on missing fields; only a record without an
// award number is rejected with ErrMalformedRecord.
func Normalize(raw common.RawRecord) (*common.RecordFragment, error) {
	awardNumber := strings.TrimSpace(stringField(raw, "id"))
	if awardNumber == "" {
		return nil, fmt.Errorf("record has no award number: %w", common.ErrMalformedRecord)
	}

	frag := &common.RecordFragment{
		AwardNumber: awardNumber,
		Title:       CleanText(stringField(raw, "title")),
		Amount:      numberField(raw, "fundsObligatedAmt"),
		StartDate:   strings.TrimSpace(stringField(raw, "startDate")),
		EndDate:     strings.TrimSpace(stringField(raw, "expDate")),
		Abstract:    CleanText(stringField(raw, "abstractText")),
	}

	frag.Program = normalizeProgram(raw)
	frag.Institution = common.InstitutionFragment{
		Name:  NameField(stringField(raw, "awardeeName")),
		City:  CleanText(stringField(raw, "awardeeCity")),
		State: strings.ToUpper(strings.TrimSpace(stringField(raw, "awardeeStateCode"))),
	}
	frag.PIs = normalizePIs(raw)
	frag.Topics = ExtractTopics(frag.Abstract, stringField(raw, "keywords"), defaultTopicCount)

	return frag, nil
}

func normalizeProgram(raw common.RawRecord) common.ProgramFragment {
	name := CleanText(stringField(raw, "fundProgramName"))
	code := strings.ToUpper(strings.TrimSpace(stringField(raw, "primaryProgram")))
	if code == "" {
		// Some records carry only the program name; its key doubles as code.
		code = strings.ToUpper(MatchKey(name))
	}
	return common.ProgramFragment{Code: code, Name: name}
}

func normalizePIs(raw common.RawRecord) []common.PIFragment {
	pis := make([]common.PIFragment, 0, 2)

	lead := CleanText(stringField(raw, "piFirstName") + " " + stringField(raw, "piLastName"))
	if lead == "" {
		lead = CleanText(stringField(raw, "pdPIName"))
	}
	if lead != "" {
		pis = append(pis, common.PIFragment{
			Name:  NameField(lead),
			Role:  "pi",
			Email: strings.ToLower(strings.TrimSpace(stringField(raw, "piEmail"))),
		})
	}

	for _, co := range listField(raw, "coPDPI") {
		co = CleanText(co)
		if co == "" {
			continue
		}
		pis = append(pis, common.PIFragment{Name: NameField(co), Role: "co-pi"})
	}

	return pis
}

func stringField(raw common.RawRecord, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func numberField(raw common.RawRecord, key string) float64 {
	switch v := raw[key].(type) {
	case float64:
		return v
	case string:
		n, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func listField(raw common.RawRecord, key string) []string {
	switch v := raw[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return strings.Split(v, ";")
	default:
		return nil
	}
}
