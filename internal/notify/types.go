// Package notify fans notifications out to interested users.
package notify

import (
	"encoding/json"
	"fmt"
)

// Type is the closed set of notification kinds.
type Type uint8

const (
	// BillSummaryUpdated fires when a followed bill receives a new summary.
	BillSummaryUpdated Type = iota
	// BillVotedOn fires when a followed bill records a new vote date.
	BillVotedOn

	typeCount
)

type typeSpec struct {
	name  string
	title string
}

var typeSpecs = [...]typeSpec{
	BillSummaryUpdated: {name: "bill_summary_updated", title: "A bill you follow has a new summary"},
	BillVotedOn:        {name: "bill_voted_on", title: "A bill you follow was voted on"},
}

var (
	_ [len(typeSpecs) - int(typeCount)]struct{}
	_ [int(typeCount) - len(typeSpecs)]struct{}
)

// Types lists every notification type.
func Types() []Type {
	types := make([]Type, 0, typeCount)
	for t := Type(0); t < typeCount; t++ {
		types = append(types, t)
	}
	return types
}

// String returns the wire name.
func (t Type) String() string {
	if t >= typeCount {
		return fmt.Sprintf("type(%d)", uint8(t))
	}
	return typeSpecs[t].name
}

// Title returns the user-facing headline.
func (t Type) Title() string {
	if t >= typeCount {
		return ""
	}
	return typeSpecs[t].title
}

// ParseType resolves a wire name.
func ParseType(name string) (Type, error) {
	for t := Type(0); t < typeCount; t++ {
		if typeSpecs[t].name == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("notify: unknown notification type %q", name)
}

func (t Type) MarshalJSON() ([]byte, error) {
	if t >= typeCount {
		return nil, fmt.Errorf("notify: unknown notification type %d", uint8(t))
	}
	return json.Marshal(t.String())
}

func (t *Type) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseType(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
