package control

import (
	"fmt"

	"github.com/RaedanWulfe/oddimorf/internal/config"
)

// FromConfig builds one Control from a controlSchema entry (spec §6:
// "controlSchema (list of control descriptors)"). The entry's "uid" is
// validated and hyphen-stripped as the control's wire identity; "type"
// selects the variant, and the remaining fields are variant-specific,
// mirroring the Python original's dict-keyed control_config access.
func FromConfig(entry map[string]any) (Control, error) {
	rawUID, _ := entry["uid"].(string)
	uid, err := config.NormalizedUID(rawUID)
	if err != nil {
		return nil, fmt.Errorf("control: %w", err)
	}

	typeTag, _ := entry["type"].(string)
	label, _ := entry["label"].(string)

	switch Type(typeTag) {
	case TypeTextBox:
		value, _ := entry["value"].(string)
		return NewTextBox(uid, label, value), nil

	case TypeSlider:
		min := intFrom(entry["min"])
		max := intFrom(entry["max"])
		value := intFrom(entry["value"])
		return NewSlider(uid, label, min, max, value), nil

	case TypeRadio:
		items := stringsFrom(entry["items"])
		selected := intFrom(entry["selected"])
		return NewRadio(uid, label, items, selected), nil

	case TypeCheckBox:
		items := toggleItemsFrom(entry["items"])
		return NewCheckBox(uid, label, items), nil

	default:
		return nil, fmt.Errorf("control: unknown type tag %q", typeTag)
	}
}

func intFrom(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func stringsFrom(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toggleItemsFrom(v any) []ToggleItem {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]ToggleItem, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		label, _ := m["label"].(string)
		checked, _ := m["isChecked"].(bool)
		out = append(out, ToggleItem{Label: label, IsChecked: checked})
	}
	return out
}
