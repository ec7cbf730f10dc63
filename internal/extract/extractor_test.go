package extract

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"TSH", "tsh"},
		{"  Vitamina D (25-OH)  ", "vitamina d 25 oh"},
		{"Hemoglobina Glicosilada", "hemoglobina glicosilada"},
		{"Proteína C Reactiva", "proteina c reactiva"},
		{"T4_Libre", "t4 libre"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeName(tc.in); got != tc.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMatchSlug(t *testing.T) {
	cases := []struct {
		name string
		slug string
		ok   bool
	}{
		{"TSH", "tsh", true},
		{"Tirotropina (TSH)", "tsh", true},
		{"Colesterol Total", "colesterol_total", true},
		{"Colesterol LDL", "ldl", true},
		{"Colesterol HDL", "hdl", true},
		{"25-Hidroxivitamina D", "vitamina_d3", true},
		{"Ferritina", "ferritina", true},
		{"Glucemia basal", "glucosa", true},
		{"TG", "trigliceridos", true},
		{"Trigliceridos", "trigliceridos", true},
		// Short abbreviations must match whole tokens: the liver enzymes
		// TGO/TGP must never resolve to triglycerides.
		{"TGO (AST)", "", false},
		{"TGP (ALT)", "", false},
		{"Recuento de plaquetas", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		slug, ok := MatchSlug(tc.name)
		if ok != tc.ok || slug != tc.slug {
			t.Errorf("MatchSlug(%q) = (%q, %t), want (%q, %t)", tc.name, slug, ok, tc.slug, tc.ok)
		}
	}
}

func TestParseValue(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"5.2", 5.2, true},
		{"5,2", 5.2, true},
		{"< 0.5", 0.5, true},
		{"<=10", 10, true},
		{"≥ 40", 40, true},
		{"5.2 mg/dL", 5.2, true},
		{"5.2mg/dL", 5.2, true},
		{"-1.5", -1.5, true},
		{"negativo", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseValue(tc.in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("ParseValue(%q) = (%v, %t), want (%v, %t)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestFromDocuments(t *testing.T) {
	docs := []Document{
		{
			ID:       "doc-1",
			ExamDate: date("2024-01-01"),
			Modules: []Module{
				{
					Name: "Perfil tiroideo",
					Parameters: []Parameter{
						{Name: "TSH", Value: "1.5", Unit: "mIU/L"},
						{Name: "Anticuerpos TPO", Value: "12"},  // unmatched name
						{Name: "T4 Libre", Value: "pendiente"}, // unparseable value
					},
				},
			},
		},
	}

	res := FromDocuments(docs)
	if len(res.Values) != 1 {
		t.Fatalf("expected 1 value, got %d: %+v", len(res.Values), res.Values)
	}
	v := res.Values[0]
	if v.Slug != "tsh" || v.Value != 1.5 || v.DocumentID != "doc-1" || v.Source != "Perfil tiroideo" {
		t.Errorf("unexpected value: %+v", v)
	}
	wantUnmatched := []string{"Anticuerpos TPO", "T4 Libre"}
	if diff := cmp.Diff(wantUnmatched, res.Unmatched); diff != "" {
		t.Errorf("unmatched mismatch (-want +got):\n%s", diff)
	}
}

func TestFromDocumentsLiverEnzymesDoNotShadowTriglycerides(t *testing.T) {
	docs := []Document{
		{
			ID:       "doc-1",
			ExamDate: date("2024-03-01"),
			Modules: []Module{
				{
					Name: "Perfil hepatico",
					Parameters: []Parameter{
						{Name: "TGO (AST)", Value: "185", Unit: "U/L"},
						{Name: "Trigliceridos", Value: "95", Unit: "mg/dL"},
					},
				},
			},
		},
	}

	res := FromDocuments(docs)
	if len(res.Values) != 1 {
		t.Fatalf("expected 1 matched value, got %d: %+v", len(res.Values), res.Values)
	}
	deduped := Dedupe(res.Values)
	if deduped[0].Slug != "trigliceridos" || deduped[0].Value != 95 {
		t.Errorf("triglycerides value displaced: %+v", deduped[0])
	}
	wantUnmatched := []string{"TGO (AST)"}
	if diff := cmp.Diff(wantUnmatched, res.Unmatched); diff != "" {
		t.Errorf("unmatched mismatch (-want +got):\n%s", diff)
	}
}

func TestDedupeKeepsMostRecent(t *testing.T) {
	values := []BiomarkerValue{
		{Slug: "ferritina", Value: 30, Date: date("2024-01-01"), DocumentID: "old"},
		{Slug: "ferritina", Value: 55, Date: date("2024-06-01"), DocumentID: "new"},
	}

	out := Dedupe(values)
	if len(out) != 1 {
		t.Fatalf("expected 1 value, got %d", len(out))
	}
	if out[0].DocumentID != "new" || out[0].Value != 55 {
		t.Errorf("expected the 2024-06-01 observation to survive, got %+v", out[0])
	}

	// Order of arrival must not matter.
	reversed := Dedupe([]BiomarkerValue{values[1], values[0]})
	if reversed[0].DocumentID != "new" {
		t.Errorf("order-dependent dedup: got %+v", reversed[0])
	}
}

func TestDedupeUndatedIsSuperseded(t *testing.T) {
	values := []BiomarkerValue{
		{Slug: "glucosa", Value: 99, Date: nil},
		{Slug: "glucosa", Value: 88, Date: date("2020-01-01")},
	}
	out := Dedupe(values)
	if len(out) != 1 || out[0].Value != 88 {
		t.Fatalf("dated observation should supersede undated one, got %+v", out)
	}
}

func TestDedupeIdempotent(t *testing.T) {
	values := []BiomarkerValue{
		{Slug: "ferritina", Value: 30, Date: date("2024-01-01")},
		{Slug: "ferritina", Value: 55, Date: date("2024-06-01")},
		{Slug: "glucosa", Value: 90, Date: date("2024-06-01")},
	}
	once := Dedupe(values)
	twice := Dedupe(once)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("dedup is not idempotent (-once +twice):\n%s", diff)
	}
}

func TestValueMap(t *testing.T) {
	values := []BiomarkerValue{
		{Slug: "tsh", Value: 1.5},
		{Slug: "glucosa", Value: 90},
	}
	m := ValueMap(values)
	if m["tsh"] != 1.5 || m["glucosa"] != 90 || len(m) != 2 {
		t.Errorf("unexpected map: %v", m)
	}
}
