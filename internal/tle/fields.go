package tle

import (
	"fmt"
	"strconv"
	"strings"
)

// lineLength is the fixed width of TLE lines 1 and 2.
const lineLength = 69

type field struct {
	name  string
	value func(line string) string
}

// stripSpaces removes at most two blanks, matching how SGP4 readers normalise
// signed fields such as " .00016717" or "-12345-4".
func stripSpaces(s string) string {
	return strings.Replace(s, " ", "", 2)
}

// line1Fields are the numeric columns of line 1, sliced the way the SGP4
// library slices them. nddot and bstar use the implied-decimal exponent form.
var line1Fields = []field{
	{"epoch day", func(l string) string { return l[20:32] }},
	{"mean motion dot", func(l string) string { return stripSpaces(l[33:43]) }},
	{"mean motion ddot", func(l string) string { return stripSpaces(l[44:45] + "." + l[45:50] + "e" + l[50:52]) }},
	{"bstar", func(l string) string { return stripSpaces(l[53:54] + "." + l[54:59] + "e" + l[59:61]) }},
}

var line2Fields = []field{
	{"inclination", func(l string) string { return stripSpaces(l[8:16]) }},
	{"right ascension", func(l string) string { return stripSpaces(l[17:25]) }},
	{"eccentricity", func(l string) string { return "." + l[26:33] }},
	{"argument of perigee", func(l string) string { return stripSpaces(l[34:42]) }},
	{"mean anomaly", func(l string) string { return stripSpaces(l[43:51]) }},
	{"mean motion", func(l string) string { return stripSpaces(l[52:63]) }},
}

// CheckFields reports whether every fixed column the SGP4 initialiser reads
// from line1 and line2 parses. The library aborts the process on a bad
// column, so lines must pass this before they are handed to it.
//
// Checksums are not verified.
func CheckFields(line1, line2 string) error {
	if len(line1) != lineLength {
		return fmt.Errorf("line1 length %d, expected %d", len(line1), lineLength)
	}
	if len(line2) != lineLength {
		return fmt.Errorf("line2 length %d, expected %d", len(line2), lineLength)
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}

	if _, err := strconv.ParseInt(strings.TrimSpace(line1[2:7]), 10, 0); err != nil {
		return fmt.Errorf("line1 satellite number: %w", err)
	}
	if _, err := strconv.ParseInt(line1[18:20], 10, 0); err != nil {
		return fmt.Errorf("line1 epoch year: %w", err)
	}
	for _, f := range line1Fields {
		if _, err := strconv.ParseFloat(f.value(line1), 64); err != nil {
			return fmt.Errorf("line1 %s: %w", f.name, err)
		}
	}
	for _, f := range line2Fields {
		if _, err := strconv.ParseFloat(f.value(line2), 64); err != nil {
			return fmt.Errorf("line2 %s: %w", f.name, err)
		}
	}
	return nil
}
