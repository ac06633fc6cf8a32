package mergeerr

import (
	"fmt"

	"github.com/Kong/gojsondiff"
	"github.com/Kong/gojsondiff/formatter"
)

// Diff renders the field-level difference between the first two colliding
// objects' constrained-column values, the same way the teacher's `diff`
// command renders a human-readable diff of two declarative-config
// entities. Useful for a caller logging or displaying a collision in
// detail rather than the terse Error() summary; returns an error if fewer
// than two values are present or either is not a JSON object shape.
func (e *UniqueConstraintCollision) Diff() (string, error) {
	if len(e.Values) < 2 {
		return "", fmt.Errorf("mergeerr: need at least two colliding values to diff, got %d", len(e.Values))
	}
	left, ok := e.Values[0].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("mergeerr: left value is not an object")
	}
	right, ok := e.Values[1].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("mergeerr: right value is not an object")
	}

	diff, err := gojsondiff.New().CompareObjects(left, right)
	if err != nil {
		return "", fmt.Errorf("mergeerr: comparing colliding values: %w", err)
	}
	if !diff.Modified() {
		return "", nil
	}

	out, err := formatter.NewAsciiFormatter(left, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
	}).Format(diff)
	if err != nil {
		return "", fmt.Errorf("mergeerr: formatting collision diff: %w", err)
	}
	return out, nil
}
