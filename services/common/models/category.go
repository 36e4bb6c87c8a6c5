// services/common/models/category.go
package models

import "sort"

// FilenamePolicy decides how an artifact is named inside its category folder.
type FilenamePolicy int

const (
	// FixedName stores a single artifact per device and day.
	FixedName FilenamePolicy = iota
	// SlotName stores one artifact per 30-minute slot.
	SlotName
)

// Category describes one kind of derived analysis artifact.
type Category struct {
	Name      string
	Policy    FilenamePolicy
	FileName  string // used with FixedName
	Extension string
	// Summary names the fixed category aggregating a slot category, if any.
	Summary string
}

// FileNameFor returns the object name for the artifact of the given slot.
func (c Category) FileNameFor(slot string) string {
	if c.Policy == FixedName {
		return c.FileName
	}
	return slot + c.Extension
}

var categories = map[string]Category{
	"transcriptions":    {Name: "transcriptions", Policy: SlotName, Extension: ".json"},
	"prompt":            {Name: "prompt", Policy: FixedName, FileName: "emotion-timeline_gpt_prompt.json", Extension: ".json"},
	"emotion-timeline":  {Name: "emotion-timeline", Policy: FixedName, FileName: "emotion-timeline.json", Extension: ".json"},
	"sed":               {Name: "sed", Policy: SlotName, Extension: ".json", Summary: "sed-summary"},
	"sed-summary":       {Name: "sed-summary", Policy: FixedName, FileName: "result.json", Extension: ".json"},
	"opensmile":         {Name: "opensmile", Policy: SlotName, Extension: ".json", Summary: "opensmile-summary"},
	"opensmile-summary": {Name: "opensmile-summary", Policy: FixedName, FileName: "result.json", Extension: ".json"},
}

// LookupCategory returns the descriptor registered under name.
func LookupCategory(name string) (Category, bool) {
	c, ok := categories[name]
	return c, ok
}

// CategoryNames lists every registered category, sorted.
func CategoryNames() []string {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
