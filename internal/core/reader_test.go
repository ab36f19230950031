package core

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func mailsSpec(t *testing.T) DatasetSpec {
	t.Helper()
	spec, err := MustGet(KindMails)
	if err != nil {
		t.Fatalf("MustGet(mails): %v", err)
	}
	return spec
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReadRecords(t *testing.T) {
	spec := mailsSpec(t)
	src := SourceFile{Path: "/in/mails/mailing_list-a.csv", Kind: KindMails}

	tests := []struct {
		name         string
		input        string
		wantRecords  int
		wantMismatch bool
		wantEmpty    bool
		wantBlank    int
	}{
		{
			name:        "canonical header",
			input:       strings.Join(MailingHeader, ",") + "\na@x.com,A,,,Jan 01 2025 10:00 AM UTC,US,,1\n",
			wantRecords: 1,
		},
		{
			name:      "empty file",
			input:     "",
			wantEmpty: true,
		},
		{
			name:        "header only",
			input:       strings.Join(MailingHeader, ",") + "\n",
			wantRecords: 0,
		},
		{
			name:        "blank rows skipped",
			input:       strings.Join(MailingHeader, ",") + "\n,,,,,,,\n  , ,\na@x.com\n",
			wantRecords: 1,
			wantBlank:   2,
		},
		{
			name:         "renamed column",
			input:        "e-mail,fullname,firstname,lastname,date added,country,postal code,num purchases\na@x.com,A,,,,,,1\n",
			wantRecords:  1,
			wantMismatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ReadRecords(strings.NewReader(tt.input), src, spec, quietLogger())
			if err != nil {
				t.Fatalf("ReadRecords() unexpected error: %v", err)
			}
			if len(res.Records) != tt.wantRecords {
				t.Errorf("len(Records) = %d, want %d", len(res.Records), tt.wantRecords)
			}
			if res.HeaderMismatch != tt.wantMismatch {
				t.Errorf("HeaderMismatch = %v, want %v", res.HeaderMismatch, tt.wantMismatch)
			}
			if res.Empty != tt.wantEmpty {
				t.Errorf("Empty = %v, want %v", res.Empty, tt.wantEmpty)
			}
			if res.BlankRows != tt.wantBlank {
				t.Errorf("BlankRows = %d, want %d", res.BlankRows, tt.wantBlank)
			}
			for _, r := range res.Records {
				if len(r.Fields) != spec.Width() {
					t.Errorf("len(Fields) = %d, want %d", len(r.Fields), spec.Width())
				}
			}
		})
	}
}

func TestReadRecords_PadAndTruncate(t *testing.T) {
	spec := mailsSpec(t)
	src := SourceFile{Path: "m.csv", Kind: KindMails}
	input := strings.Join(MailingHeader, ",") + "\n" +
		"short@x.com,Short\n" +
		"long@x.com,L,,,,,,4,extra,more\n"

	res, err := ReadRecords(strings.NewReader(input), src, spec, quietLogger())
	if err != nil {
		t.Fatalf("ReadRecords() unexpected error: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(res.Records))
	}

	short := res.Records[0].Fields
	if short[0] != "short@x.com" || short[1] != "Short" || short[7] != "" {
		t.Errorf("short row = %q, want padded with empty strings", short)
	}
	long := res.Records[1].Fields
	if len(long) != 8 || long[7] != "4" {
		t.Errorf("long row = %q, want truncated to 8 fields ending in 4", long)
	}
	if res.Records[1].Line != 3 {
		t.Errorf("Line = %d, want 3", res.Records[1].Line)
	}
}

func TestReadRecords_MismatchIsPositional(t *testing.T) {
	spec := mailsSpec(t)
	src := SourceFile{Path: "m.csv", Kind: KindMails}

	// Columns swapped in the header; values still follow canonical positions.
	input := "fullname,email,firstname,lastname,date added,country,postal code,num purchases\n" +
		"a@x.com,Alice,,,Jan 01 2025 10:00 AM UTC,NO,0150,2\n"

	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))

	res, err := ReadRecords(strings.NewReader(input), src, spec, log)
	if err != nil {
		t.Fatalf("ReadRecords() unexpected error: %v", err)
	}
	if !res.HeaderMismatch {
		t.Error("HeaderMismatch = false, want true")
	}
	if !strings.Contains(logs.String(), "header mismatch") {
		t.Errorf("log output = %q, want header mismatch warning", logs.String())
	}

	sub := SubscriberFromRaw(res.Records[0])
	if sub.Email != "a@x.com" || sub.FullName != "Alice" || sub.NumPurchases != "2" {
		t.Errorf("record = %+v, want positional alignment", sub)
	}
}
