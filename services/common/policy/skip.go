// services/common/policy/skip.go

// Package policy decides the initial processing status of a new recording.
package policy

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/errs"
	"gopkg.in/yaml.v3"

	"github.com/watchme-app/vault-api/services/common/models"
	"github.com/watchme-app/vault-api/services/common/pathkey"
)

// Error is the class of skip policy configuration errors.
var Error = errs.Class("skip policy")

// Skip marks configured device/hour combinations as exempt from automated
// downstream processing. It is built once and never mutated.
type Skip struct {
	enabled bool
	devices map[string]struct{}
	hours   map[int]struct{}
}

// NewSkip builds a policy. Hours outside 0..23 are rejected.
func NewSkip(enabled bool, devices []string, hours []int) (*Skip, error) {
	p := &Skip{
		enabled: enabled,
		devices: make(map[string]struct{}, len(devices)),
		hours:   make(map[int]struct{}, len(hours)),
	}
	for _, d := range devices {
		if d = strings.TrimSpace(d); d != "" {
			p.devices[d] = struct{}{}
		}
	}
	for _, h := range hours {
		if h < 0 || h > 23 {
			return nil, Error.New("hour %d out of range 0-23", h)
		}
		p.hours[h] = struct{}{}
	}
	return p, nil
}

// Disabled returns a policy that never skips.
func Disabled() *Skip {
	p, _ := NewSkip(false, nil, nil)
	return p
}

// InitialStatus returns skipped only when the policy is enabled, the device is
// listed, and the slot's hour is listed. A malformed slot is pending.
func (p *Skip) InitialStatus(deviceID, slot string) models.Status {
	if p == nil || !p.enabled || len(p.hours) == 0 {
		return models.StatusPending
	}
	if _, ok := p.devices[deviceID]; !ok {
		return models.StatusPending
	}
	hour, err := pathkey.ParseSlot(slot)
	if err != nil {
		return models.StatusPending
	}
	if _, ok := p.hours[hour]; ok {
		return models.StatusSkipped
	}
	return models.StatusPending
}

// Enabled reports whether the policy can ever skip.
func (p *Skip) Enabled() bool { return p != nil && p.enabled }

// Devices returns the configured device ids, sorted.
func (p *Skip) Devices() []string {
	out := make([]string, 0, len(p.devices))
	for d := range p.devices {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Hours returns the configured hours, sorted.
func (p *Skip) Hours() []int {
	out := make([]int, 0, len(p.hours))
	for h := range p.hours {
		out = append(out, h)
	}
	sort.Ints(out)
	return out
}

// ParseList splits a comma separated environment value.
func ParseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseHours parses a comma separated list of hours.
func ParseHours(value string) ([]int, error) {
	var hours []int
	for _, part := range ParseList(value) {
		h, err := strconv.Atoi(part)
		if err != nil {
			return nil, Error.New("invalid hour %q", part)
		}
		hours = append(hours, h)
	}
	return hours, nil
}

type skipFile struct {
	Enabled   bool     `yaml:"enabled"`
	DeviceIDs []string `yaml:"device_ids"`
	Hours     []int    `yaml:"hours"`
}

// LoadSkipFile reads a YAML policy:
//
//	enabled: true
//	device_ids: [9f7d6e27-98c3-4c19-bdfb-f7fda58b9a93]
//	hours: [23, 0, 1, 2, 3, 4, 5]
func LoadSkipFile(path string) (*Skip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var f skipFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, Error.New("parse %s: %v", path, err)
	}
	return NewSkip(f.Enabled, f.DeviceIDs, f.Hours)
}
