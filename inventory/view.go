package inventory

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Row is one line of the user-visible inventory list. Quantity holds whatever
// the user typed and is only interpreted on export.
type Row struct {
	Label    string `json:"label"`
	Detected int    `json:"detected"`
	Quantity string `json:"quantity"`
}

// EffectiveQuantity parses the row's quantity. Empty, non-numeric and
// negative input all count as zero.
func (r Row) EffectiveQuantity() int {
	return ParseQuantity(r.Quantity)
}

// ParseQuantity interprets user-typed quantity text.
//
// Arguments:
//   - text: The raw text.
//
// Returns:
//   - int: The non-negative quantity, or 0 if the text is not one.
func ParseQuantity(text string) int {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ViewModel reconciles Accumulator counts with user-edited quantities.
//
// Edits live only in the rows. Every Rebuild recreates all rows from the
// current counts, so edits made before a capture or clear are discarded.
type ViewModel struct {
	rows  []Row
	index map[string]int
}

// NewViewModel creates an empty view.
func NewViewModel() *ViewModel {
	return &ViewModel{index: make(map[string]int)}
}

// Rebuild replaces every row with one per entry, each quantity initialized to
// the detected count.
//
// Arguments:
//   - entries: The accumulator's current mapping.
//
// Returns:
//   - []Row: The new row set.
func (v *ViewModel) Rebuild(entries []Entry) []Row {
	v.rows = make([]Row, 0, len(entries))
	v.index = make(map[string]int, len(entries))
	for _, e := range entries {
		v.index[e.Label] = len(v.rows)
		v.rows = append(v.rows, Row{
			Label:    e.Label,
			Detected: e.Count,
			Quantity: strconv.Itoa(e.Count),
		})
	}
	return v.Rows()
}

// Rows returns a copy of the current row set.
func (v *ViewModel) Rows() []Row {
	return append([]Row(nil), v.rows...)
}

// Row returns the row for label.
func (v *ViewModel) Row(label string) (Row, bool) {
	i, ok := v.index[label]
	if !ok {
		return Row{}, false
	}
	return v.rows[i], true
}

// SetQuantity stores the user's text for label's row. The accumulator is not
// touched.
//
// Arguments:
//   - label: The row to edit.
//   - text: The raw quantity text.
//
// Returns:
//   - error: An error if no row exists for label.
func (v *ViewModel) SetQuantity(label, text string) error {
	i, ok := v.index[label]
	if !ok {
		return errors.Errorf("no inventory row for %q", label)
	}
	v.rows[i].Quantity = text
	return nil
}

// DisplayText returns "label: quantity" lines, newline joined, for every row
// with an effective quantity above zero. The result is empty when nothing
// qualifies.
func (v *ViewModel) DisplayText() string {
	lines := make([]string, 0, len(v.rows))
	for _, row := range v.rows {
		if qty := row.EffectiveQuantity(); qty > 0 {
			lines = append(lines, fmt.Sprintf("%s: %d", row.Label, qty))
		}
	}
	return strings.Join(lines, "\n")
}
