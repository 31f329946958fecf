package output

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

type fakeDoc struct {
	chunks []string
	err    error
}

func (d fakeDoc) Output(w io.Writer) error {
	for _, c := range d.chunks {
		if _, err := io.WriteString(w, c); err != nil {
			return err
		}
	}
	return d.err
}

var may1 = time.Date(2024, 5, 1, 23, 30, 0, 0, time.FixedZone("CEST", 2*3600))

func TestAssemble(t *testing.T) {
	res, err := Assemble(fakeDoc{chunks: []string{"%PDF-1.3\n", "body", "%%EOF"}}, "Jane", "Doe", may1)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Filename != "Jane_Doe_2024-05-01.pdf" {
		t.Errorf("Filename = %q", res.Filename)
	}
	if res.Size != int64(len(res.Bytes)) || res.Size != 18 {
		t.Errorf("Size = %d, len = %d", res.Size, len(res.Bytes))
	}
	if !strings.HasPrefix(string(res.Bytes), "%PDF-") {
		t.Errorf("Bytes = %q", res.Bytes)
	}
}

func TestAssembleError(t *testing.T) {
	boom := errors.New("boom")
	if _, err := Assemble(fakeDoc{err: boom}, "a", "b", may1); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
}

func TestFilename(t *testing.T) {
	utcLate := time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)
	tests := []struct {
		first, last string
		now         time.Time
		want        string
	}{
		{"Jane", "Doe", may1, "Jane_Doe_2024-05-01.pdf"},
		{"Mary  Ann", "van der Berg", may1, "Mary_Ann_van_der_Berg_2024-05-01.pdf"},
		{" Jane ", "", may1, "Jane_2024-05-01.pdf"},
		{"", "", utcLate, "document_2024-12-31.pdf"},
		{"../etc", "a\\b", may1, ".._etc_a_b_2024-05-01.pdf"},
		{"Zoë", "Núñez", may1, "Zoë_Núñez_2024-05-01.pdf"},
	}
	for _, tt := range tests {
		if got := Filename(tt.first, tt.last, tt.now); got != tt.want {
			t.Errorf("Filename(%q, %q) = %q, want %q", tt.first, tt.last, got, tt.want)
		}
	}
}

func TestASCIIFilename(t *testing.T) {
	tests := map[string]string{
		"Zoë_Núñez_2024-05-01.pdf": "Zoe_Nunez_2024-05-01.pdf",
		"Jane_Doe.pdf":             "Jane_Doe.pdf",
		"李_2024.pdf":               "__2024.pdf",
		`a"b\c.pdf`:                "a_b_c.pdf",
	}
	for in, want := range tests {
		if got := ASCIIFilename(in); got != want {
			t.Errorf("ASCIIFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestContentDisposition(t *testing.T) {
	if got, want := ContentDisposition("Jane_Doe.pdf"), "attachment; filename=Jane_Doe.pdf"; got != want {
		t.Errorf("ContentDisposition = %q, want %q", got, want)
	}
	got := ContentDisposition("Zoë.pdf")
	if !strings.Contains(got, "filename=Zoe.pdf") || !strings.Contains(got, "filename*=UTF-8''Zo%C3%AB.pdf") {
		t.Errorf("ContentDisposition = %q", got)
	}
}
