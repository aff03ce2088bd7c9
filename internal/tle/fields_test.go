package tle

import (
	"strings"
	"testing"
)

// corrupt replaces the byte at i with a letter no numeric field accepts.
func corrupt(line string, i int) string {
	return line[:i] + "X" + line[i+1:]
}

func TestCheckFields(t *testing.T) {
	if err := CheckFields(issLine1, issLine2); err != nil {
		t.Fatalf("valid lines rejected: %v", err)
	}

	tests := []struct {
		name         string
		line1, line2 string
	}{
		{"short line1", issLine1[:68], issLine2},
		{"long line2", issLine1, issLine2 + "0"},
		{"line1 prefix", "3" + issLine1[1:], issLine2},
		{"line2 prefix", issLine1, "1" + issLine2[1:]},
		{"satellite number", corrupt(issLine1, 3), issLine2},
		{"epoch year", corrupt(issLine1, 19), issLine2},
		{"epoch day", corrupt(issLine1, 25), issLine2},
		{"mean motion dot", corrupt(issLine1, 36), issLine2},
		{"mean motion ddot", corrupt(issLine1, 46), issLine2},
		{"bstar", corrupt(issLine1, 55), issLine2},
		{"inclination", issLine1, corrupt(issLine2, 10)},
		{"right ascension", issLine1, corrupt(issLine2, 19)},
		{"eccentricity", issLine1, corrupt(issLine2, 28)},
		{"argument of perigee", issLine1, corrupt(issLine2, 36)},
		{"mean anomaly", issLine1, corrupt(issLine2, 45)},
		{"mean motion", issLine1, corrupt(issLine2, 55)},
		{"inclination letters", issLine1, issLine2[:8] + "  XX.XXX" + issLine2[16:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := CheckFields(tt.line1, tt.line2); err == nil {
				t.Errorf("CheckFields accepted %q / %q", tt.line1, tt.line2)
			}
		})
	}
}

func TestParseSkipsCorruptColumns(t *testing.T) {
	input := "BAD INCLINATION\n" + issLine1 + "\n" + issLine2[:8] + "  XX.XXX" + issLine2[16:] + "\n" +
		"BAD BSTAR\n" + corrupt(issLine1, 55) + "\n" + issLine2 + "\n" +
		catalog(1)

	entries, err := Parse(strings.NewReader(input), DefaultParseOptions(), testLogger)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 1 || entries[0].NORADID != 40000 {
		t.Fatalf("got %+v, want only NORAD 40000", entries)
	}
}
