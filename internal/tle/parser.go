package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultCenturyPivot is the two-digit epoch year below which years map to
	// the 2000s. Years at or above it map to the 1900s.
	DefaultCenturyPivot = 57

	// DefaultMaxObjects bounds how many entries Parse returns.
	DefaultMaxObjects = 50
)

// ParseOptions controls catalog parsing.
type ParseOptions struct {
	CenturyPivot int // two-digit year pivot (default: 57)
	MaxObjects   int // truncate result to this many entries; <= 0 keeps all
}

// DefaultParseOptions returns the options used when none are configured.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{
		CenturyPivot: DefaultCenturyPivot,
		MaxObjects:   DefaultMaxObjects,
	}
}

// Parse reads 3-line NORAD TLE format from r and returns parsed entries.
//
// Lines are consumed in fixed groups of three (name, line 1, line 2). A trailing
// group with fewer than three lines is dropped. Malformed groups are skipped
// with a warning log. The result is truncated to opts.MaxObjects.
func Parse(r io.Reader, opts ParseOptions, logger *slog.Logger) ([]TLEEntry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []TLEEntry
	for i := 0; i+2 < len(lines); i += 3 {
		name := strings.TrimSpace(lines[i])
		line1 := strings.TrimSpace(lines[i+1])
		line2 := strings.TrimSpace(lines[i+2])

		entry, err := parseEntry(name, line1, line2, opts.CenturyPivot)
		if err != nil {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name, "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	if opts.MaxObjects > 0 && len(entries) > opts.MaxObjects {
		logger.Debug("truncating TLE entries", "parsed", len(entries), "max_objects", opts.MaxObjects)
		entries = entries[:opts.MaxObjects]
	}

	return entries, nil
}

// Format writes entries back out as 3-line TLE text that Parse reads unchanged.
func Format(entries []TLEEntry) []byte {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Name)
		b.WriteByte('\n')
		b.WriteString(e.Line1)
		b.WriteByte('\n')
		b.WriteString(e.Line2)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func parseEntry(name, line1, line2 string, pivot int) (TLEEntry, error) {
	if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
		return TLEEntry{}, fmt.Errorf("unexpected line prefixes")
	}
	if len(line1) < 32 {
		return TLEEntry{}, fmt.Errorf("line1 too short: %d chars", len(line1))
	}

	// NORAD ID: line1 cols 3-7 (0-indexed 2..7).
	noradStr := strings.TrimSpace(line1[2:7])
	noradID, err := strconv.Atoi(noradStr)
	if err != nil {
		return TLEEntry{}, fmt.Errorf("invalid NORAD ID %q: %w", noradStr, err)
	}

	epoch, err := ParseEpoch(line1, pivot)
	if err != nil {
		return TLEEntry{}, err
	}
	if err := CheckFields(line1, line2); err != nil {
		return TLEEntry{}, err
	}

	return TLEEntry{
		NORADID: noradID,
		Name:    name,
		Epoch:   epoch,
		Line1:   line1,
		Line2:   line2,
	}, nil
}

// ParseEpoch extracts the epoch from TLE line 1 (cols 19-32, YYDDD.DDDDDDDD).
//
// Two-digit years below pivot map to 2000+YY, the rest to 1900+YY. The
// fractional day is split into hours, minutes and seconds, each truncated.
// Sub-second precision is discarded.
func ParseEpoch(line1 string, pivot int) (time.Time, error) {
	if len(line1) < 32 {
		return time.Time{}, fmt.Errorf("epoch field out of range: line1 has %d chars", len(line1))
	}

	yearStr := strings.TrimSpace(line1[18:20])
	dayStr := strings.TrimSpace(line1[20:32])

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", yearStr, err)
	}
	if year < pivot {
		year += 2000
	} else {
		year += 1900
	}

	dayOfYear, err := strconv.ParseFloat(dayStr, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", dayStr, err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %v out of range", dayOfYear)
	}

	return epochTime(year, dayOfYear), nil
}

// epochTime converts a full year and 1-based fractional day-of-year to UTC.
func epochTime(year int, dayOfYear float64) time.Time {
	whole := math.Floor(dayOfYear)
	frac := dayOfYear - whole

	hours := math.Floor(frac * 24)
	minutes := math.Floor((frac*24 - hours) * 60)
	seconds := math.Floor(((frac*24-hours)*60 - minutes) * 60)

	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, int(whole)-1).
		Add(time.Duration(hours)*time.Hour +
			time.Duration(minutes)*time.Minute +
			time.Duration(seconds)*time.Second)
}
