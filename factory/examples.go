package factory

// =============================================================================
// PRESET RULES
// =============================================================================

// ExampleKeys lists the presets in display order.
var ExampleKeys = []string{"overtime_1_5", "weekend_differential", "night_shift", "holiday_double"}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// Examples returns the preset rules keyed by template name. Weekdays use
// 0 = Sunday. Holiday detection is not a built-in condition, so the
// holiday preset ships inactive with a placeholder expression to replace.
func Examples() map[string]RuleJSON {
	return map[string]RuleJSON{
		"overtime_1_5": {
			Name:        "Overtime 1.5x",
			Description: "Time and a half for hours over 8 per day",
			Priority:    intPtr(10),
			Conditions:  map[string]any{"overtime_threshold": 8.0},
			Actions:     map[string]any{"pay_multiplier": 1.5, "component_name": "overtime_1_5"},
		},
		"weekend_differential": {
			Name:        "Weekend Differential",
			Description: "R2/hour differential for weekend work",
			Priority:    intPtr(20),
			Conditions:  map[string]any{"day_of_week": []any{0, 6}},
			Actions:     map[string]any{"shift_differential": 2.0, "differential_name": "weekend_diff"},
		},
		"night_shift": {
			Name:        "Night Shift Premium",
			Description: "10% premium for overnight shifts",
			Priority:    intPtr(30),
			Conditions:  map[string]any{"time_range": map[string]any{"start_hour": 22, "end_hour": 6}},
			Actions:     map[string]any{"pay_multiplier": 1.1, "component_name": "night_shift"},
		},
		"holiday_double": {
			Name:        "Holiday Double Time",
			Description: "Double time for holiday work; replace the expression with a holiday check",
			Priority:    intPtr(5),
			Active:      boolPtr(false),
			Conditions:  map[string]any{"expression": "false"},
			Actions:     map[string]any{"pay_multiplier": 2.0, "component_name": "holiday_pay"},
		},
	}
}

// Example returns one preset by key.
func Example(key string) (RuleJSON, bool) {
	rj, ok := Examples()[key]
	return rj, ok
}
