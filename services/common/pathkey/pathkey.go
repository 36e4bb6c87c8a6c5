// services/common/pathkey/pathkey.go

// Package pathkey derives storage keys, dates and 30-minute slot labels from
// device identifiers and recording timestamps.
package pathkey

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/errs"

	"github.com/watchme-app/vault-api/services/common/models"
)

// Error is the class of every client-side path, date, slot or timestamp error.
var Error = errs.Class("invalid path")

const (
	// Root is the prefix under which every stored object lives.
	Root = "files/"
	// DateLayout is the calendar date label format.
	DateLayout = "2006-01-02"
	// AudioName is the object name of a raw recording inside its slot folder.
	AudioName = "audio.wav"

	maxSegmentLen = 128
)

var (
	slotPattern     = regexp.MustCompile(`^([01][0-9]|2[0-3])-(00|30)$`)
	filePathPattern = regexp.MustCompile(`^([^/]+)/([0-9]{4}-[0-9]{2}-[0-9]{2})/raw/([0-9]{2}-[0-9]{2})\.wav$`)
)

// SlotLabel floors t to its half hour, in t's own location.
func SlotLabel(t time.Time) string {
	minute := "00"
	if t.Minute() >= 30 {
		minute = "30"
	}
	return fmt.Sprintf("%02d-%s", t.Hour(), minute)
}

// DateLabel formats the calendar date of t in t's own location.
func DateLabel(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseSlot validates a slot label and returns its hour.
func ParseSlot(slot string) (hour int, err error) {
	m := slotPattern.FindStringSubmatch(slot)
	if m == nil {
		return 0, Error.New("malformed time slot %q, expected HH-00 or HH-30", slot)
	}
	hour, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return hour, nil
}

// ParseDate validates a YYYY-MM-DD date label.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil || t.Format(DateLayout) != date {
		return time.Time{}, Error.New("malformed date %q, expected YYYY-MM-DD", date)
	}
	return t, nil
}

var (
	offsetLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04Z07:00",
	}
	localLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
	}
)

// ParseTimestamp parses an extended date-time. A timestamp carrying an offset
// keeps that offset. One without an offset is read in ref and hasOffset is false.
func ParseTimestamp(s string, ref *time.Location) (t time.Time, hasOffset bool, err error) {
	value := strings.TrimSpace(s)
	if len(value) > 10 && value[10] == ' ' {
		value = value[:10] + "T" + value[11:]
	}
	if value == "" {
		return time.Time{}, false, Error.New("empty timestamp")
	}

	var firstErr error
	for _, layout := range offsetLayouts {
		t, err = time.Parse(layout, value)
		if err == nil {
			return t, true, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	for _, layout := range localLayouts {
		t, err = time.ParseInLocation(layout, value, ref)
		if err == nil {
			return t, false, nil
		}
	}
	return time.Time{}, false, Error.New("malformed timestamp %q: %v", s, firstErr)
}

// SlotStart returns the instant at which slot begins on date, in loc.
func SlotStart(date, slot string, loc *time.Location) (time.Time, error) {
	day, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	hour, err := ParseSlot(slot)
	if err != nil {
		return time.Time{}, err
	}
	minute := 0
	if strings.HasSuffix(slot, "-30") {
		minute = 30
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), nil
}

// ValidateSegment checks that an identifier can be used as one key segment.
func ValidateSegment(name, value string) error {
	switch {
	case value == "":
		return Error.New("%s is required", name)
	case len(value) > maxSegmentLen:
		return Error.New("%s is longer than %d characters", name, maxSegmentLen)
	case strings.ContainsAny(value, "/\\\x00"):
		return Error.New("%s must not contain path separators", name)
	case strings.Contains(value, ".."):
		return Error.New("%s must not contain %q", name, "..")
	case value == ".":
		return Error.New("%s must not be %q", name, ".")
	}
	return nil
}

// AudioKey returns files/{device}/{date}/{slot}/audio.wav.
func AudioKey(deviceID, date, slot string) (string, error) {
	if err := ValidateSegment("device_id", deviceID); err != nil {
		return "", err
	}
	if _, err := ParseDate(date); err != nil {
		return "", err
	}
	if _, err := ParseSlot(slot); err != nil {
		return "", err
	}
	return Root + deviceID + "/" + date + "/" + slot + "/" + AudioName, nil
}

// ArtifactKey returns files/{device}/{date}/{category}/{name}. The slot is
// ignored for fixed-name categories.
func ArtifactKey(deviceID, date string, category models.Category, slot string) (string, error) {
	if err := ValidateSegment("device_id", deviceID); err != nil {
		return "", err
	}
	if _, err := ParseDate(date); err != nil {
		return "", err
	}
	if category.Policy == models.SlotName {
		if _, err := ParseSlot(slot); err != nil {
			return "", err
		}
	}
	return ArtifactPrefix(deviceID, date, category) + category.FileNameFor(slot), nil
}

// ArtifactPrefix returns the folder holding every artifact of one category and day.
func ArtifactPrefix(deviceID, date string, category models.Category) string {
	return Root + deviceID + "/" + date + "/" + category.Name + "/"
}

// FilePath is a parsed X-File-Path header.
type FilePath struct {
	DeviceID string
	Date     string
	Slot     string
}

// ParseFilePath validates a device_id/YYYY-MM-DD/raw/HH-MM.wav path.
func ParseFilePath(p string) (FilePath, error) {
	if err := checkRelative(p); err != nil {
		return FilePath{}, err
	}
	m := filePathPattern.FindStringSubmatch(p)
	if m == nil {
		return FilePath{}, Error.New("file path %q does not match device_id/YYYY-MM-DD/raw/HH-MM.wav", p)
	}
	fp := FilePath{DeviceID: m[1], Date: m[2], Slot: m[3]}
	if err := ValidateSegment("device_id", fp.DeviceID); err != nil {
		return FilePath{}, err
	}
	if _, err := ParseDate(fp.Date); err != nil {
		return FilePath{}, err
	}
	if _, err := ParseSlot(fp.Slot); err != nil {
		return FilePath{}, err
	}
	return fp, nil
}

// CleanObjectPath normalizes a caller-supplied object path and rejects any
// path that escapes Root.
func CleanObjectPath(p string) (string, error) {
	if err := checkRelative(p); err != nil {
		return "", err
	}
	cleaned := path.Clean(p)
	if !strings.HasPrefix(cleaned, Root) || cleaned == strings.TrimSuffix(Root, "/") {
		return "", Error.New("path %q is outside %s", p, Root)
	}
	return cleaned, nil
}

func checkRelative(p string) error {
	if p == "" {
		return Error.New("path is empty")
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, "\\") || strings.ContainsRune(p, 0) {
		return Error.New("path %q must be relative", p)
	}
	if len(p) > 1 && p[1] == ':' {
		return Error.New("path %q must be relative", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." || seg == "." {
			return Error.New("path %q must not contain %q segments", p, seg)
		}
	}
	return nil
}
