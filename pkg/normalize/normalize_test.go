package normalize

import (
	"errors"
	"reflect"
	"testing"

	"awardgraph/pkg/common"
)

func TestMatchKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases and collapses whitespace",
			in:   "  State   University ",
			want: "state university",
		},
		{
			name: "strips punctuation",
			in:   "Smith, J.",
			want: "smith j",
		},
		{
			name: "folds diacritics",
			in:   "Universidad de São Paulo",
			want: "universidad de sao paulo",
		},
		{
			name: "hyphen and slash become spaces",
			in:   "machine-learning/optimization",
			want: "machine learning optimization",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := MatchKey(tc.in)
			if got != tc.want {
				t.Fatalf("MatchKey(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeRejectsMissingAwardNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  common.RawRecord
	}{
		{name: "no id field", raw: common.RawRecord{"title": "Some Project"}},
		{name: "blank id", raw: common.RawRecord{"id": "   "}},
		{name: "non-string id of wrong type", raw: common.RawRecord{"id": []any{"x"}}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.raw)
			if !errors.Is(err, common.ErrMalformedRecord) {
				t.Fatalf("Normalize() error = %v, want ErrMalformedRecord", err)
			}
		})
	}
}

func TestNormalizeMapsFields(t *testing.T) {
	t.Parallel()

	raw := common.RawRecord{
		"id":                "2301234",
		"title":             "  Adaptive   Sensor Networks ",
		"fundsObligatedAmt": "1,250,000",
		"startDate":         "08/15/2023",
		"expDate":           "07/31/2026",
		"awardeeName":       "State University",
		"awardeeCity":       "Columbus",
		"awardeeStateCode":  "oh",
		"piFirstName":       "Jane",
		"piLastName":        "Smith",
		"piEmail":           "JSmith@example.edu",
		"coPDPI":            []any{"Robert Chen"},
		"fundProgramName":   "Computer Systems Research",
		"primaryProgram":    "cps",
	}

	frag, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if frag.AwardNumber != "2301234" {
		t.Fatalf("AwardNumber = %q, want 2301234", frag.AwardNumber)
	}
	if frag.Title != "Adaptive Sensor Networks" {
		t.Fatalf("Title = %q", frag.Title)
	}
	if frag.Amount != 1250000 {
		t.Fatalf("Amount = %v, want 1250000", frag.Amount)
	}
	if frag.Program.Code != "CPS" {
		t.Fatalf("Program.Code = %q, want CPS", frag.Program.Code)
	}
	if frag.Institution.State != "OH" {
		t.Fatalf("Institution.State = %q, want OH", frag.Institution.State)
	}
	if frag.Institution.Name.Key != "state university" {
		t.Fatalf("Institution key = %q", frag.Institution.Name.Key)
	}

	wantPIs := []common.PIFragment{
		{Name: common.NameField{Raw: "Jane Smith", Key: "jane smith"}, Role: "pi", Email: "jsmith@example.edu"},
		{Name: common.NameField{Raw: "Robert Chen", Key: "robert chen"}, Role: "co-pi"},
	}
	if !reflect.DeepEqual(frag.PIs, wantPIs) {
		t.Fatalf("PIs = %+v, want %+v", frag.PIs, wantPIs)
	}
}

func TestNormalizeMissingFieldsAreNotFatal(t *testing.T) {
	t.Parallel()

	frag, err := Normalize(common.RawRecord{"id": "2300001"})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if frag.Title != "" || frag.Amount != 0 || len(frag.PIs) != 0 {
		t.Fatalf("expected empty optional fields, got %+v", frag)
	}
	if frag.Program.Code != "" {
		t.Fatalf("Program.Code = %q, want empty", frag.Program.Code)
	}
}

func TestNormalizeProgramFallsBackToName(t *testing.T) {
	t.Parallel()

	frag, err := Normalize(common.RawRecord{
		"id":              "2300002",
		"fundProgramName": "Secure and Trustworthy Cyberspace",
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if frag.Program.Code != "SECURE AND TRUSTWORTHY CYBERSPACE" {
		t.Fatalf("Program.Code = %q", frag.Program.Code)
	}
}
