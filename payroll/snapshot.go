package payroll

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SNAPSHOT - Frozen calculation for one employee and period
// =============================================================================

// Snapshot is an immutable, append-only record of one employee's result.
// Used for:
//   - Payroll export
//   - Audit trail (who calculated what, when)
//   - Blocking deletion of rules that produced saved components
type Snapshot struct {
	ID           SnapshotID      `json:"id"`
	EmployeeID   EmployeeID      `json:"employee_id"`
	Period       Period          `json:"period"`
	TotalHours   decimal.Decimal `json:"total_hours"`
	Summary      Summary         `json:"summary"`
	Components   Components      `json:"components"`
	RecordIDs    []string        `json:"record_ids"`
	CalculatedBy string          `json:"calculated_by"`
	CalculatedAt time.Time       `json:"calculated_at"`
}

// NewSnapshot captures an employee result. The id is assigned by the sink.
func NewSnapshot(period Period, res *EmployeeResult, actorID string, at time.Time) Snapshot {
	return Snapshot{
		EmployeeID:   res.EmployeeID,
		Period:       period,
		TotalHours:   res.TotalHours,
		Summary:      res.Summary,
		Components:   res.Components,
		RecordIDs:    append([]string(nil), res.RecordIDs...),
		CalculatedBy: actorID,
		CalculatedAt: at.UTC(),
	}
}

// MarshalComponents serializes a component map for storage.
func MarshalComponents(c Components) (string, error) {
	if c == nil {
		c = Components{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal components: %w", err)
	}
	return string(b), nil
}

// UnmarshalComponents restores a stored component map.
func UnmarshalComponents(text string) (Components, error) {
	c := Components{}
	if text == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		return nil, fmt.Errorf("unmarshal components: %w", err)
	}
	return c, nil
}
