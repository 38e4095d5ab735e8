// Package rules applies field-level cleanup and cross-field consistency
// rules to an extraction record.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/model"
)

// DeadlineSoon is the accepted non-date deadline.
const DeadlineSoon = "Soon"

var reDeadline = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// FormatError reports a field whose value does not match its expected
// format. The record is still returned alongside it.
type FormatError struct {
	Field model.Field
	Value string
	Want  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("rules: %s %q does not match %s", e.Field, e.Value, e.Want)
}

// Postprocess returns a cleaned copy of rec. A *FormatError is returned
// when the deadline is malformed; every other rule still runs and the
// returned record is complete either way.
func Postprocess(rec model.Record) (model.Record, error) {
	out := make(model.Record, len(model.AllFields))
	for k, v := range rec {
		out[k] = v
	}

	for _, f := range model.AllFields {
		if _, ok := out[f]; !ok {
			out[f] = ""
		}
	}

	for _, f := range model.TextFields {
		out[f] = strings.TrimSpace(out[f])
	}

	if email := out[model.FieldContactEmail]; email != "" {
		out[model.FieldContactEmail] = NormalizeEmail(email)
	}

	out[model.FieldNumberPlaces] = ExtractHeadcount(out[model.FieldNumberPlaces])

	for _, f := range model.FlagFields {
		if strings.TrimSpace(out[f]) == "1" {
			out[f] = "1"
		} else {
			out[f] = ""
		}
	}

	if len(out.Flagged(model.EventFields)) > 0 {
		out[model.FieldNumberPlaces] = ""
	}

	var formatErr error
	if d := out[model.FieldDeadline]; d != "" && d != DeadlineSoon && !reDeadline.MatchString(d) {
		formatErr = &FormatError{Field: model.FieldDeadline, Value: d, Want: "YYYY-MM-DD"}
	}

	name := out[model.FieldContactName]
	switch {
	case name == "-":
		out[model.FieldContactEmail] = "-"
	case out[model.FieldContactEmail] == "-":
		zap.L().Warn("rules: contact name without email",
			zap.String("contact_name", name),
		)
	}

	return out, formatErr
}
