package model

import "strings"

// SchemaVersion identifies the field set below. Bump it whenever a field
// is added, removed or renamed so stored runs can be told apart.
const SchemaVersion = 1

// Field is a column of the extraction record. Values match the sheet
// headers, including the ones with spaces.
type Field string

// Stage 1: basic facts (English).
const (
	FieldDeadline     Field = "Deadline"
	FieldNumberPlaces Field = "Number_Places"
	FieldDirection    Field = "Direction"
	FieldUniversityEN Field = "University_EN"
	FieldContactName  Field = "Contact_Name"
	FieldContactEmail Field = "Contact_Email"
)

// Stage 2: position and event types.
const (
	FieldMasterStudent     Field = "Master Student"
	FieldDoctoralStudent   Field = "Doctoral Student"
	FieldPostDoc           Field = "PostDoc"
	FieldResearchAssistant Field = "Research Assistant"
	FieldCompetition       Field = "Competition"
	FieldSummerSchool      Field = "Summer School"
	FieldConference        Field = "Conference"
	FieldWorkshop          Field = "Workshop"
)

// Stage 2: research areas.
const (
	FieldPhysicalGeo Field = "Physical_Geo"
	FieldHumanGeo    Field = "Human_Geo"
	FieldUrban       Field = "Urban"
	FieldGIS         Field = "GIS"
	FieldRS          Field = "RS"
	FieldGNSS        Field = "GNSS"
)

// Stage 3: localized (simplified Chinese) fields.
const (
	FieldUniversityCN Field = "University_CN"
	FieldCountryCN    Field = "Country_CN"
	FieldLabel1       Field = "WX_Label1"
	FieldLabel2       Field = "WX_Label2"
	FieldLabel3       Field = "WX_Label3"
	FieldLabel4       Field = "WX_Label4"
	FieldLabel5       Field = "WX_Label5"
)

// PositionFields are the position-type flags.
var PositionFields = []Field{
	FieldMasterStudent, FieldDoctoralStudent, FieldPostDoc, FieldResearchAssistant,
}

// EventFields are the event-type flags. Events carry no headcount.
var EventFields = []Field{
	FieldCompetition, FieldSummerSchool, FieldConference, FieldWorkshop,
}

// AreaFields are the research-area flags.
var AreaFields = []Field{
	FieldPhysicalGeo, FieldHumanGeo, FieldUrban, FieldGIS, FieldRS, FieldGNSS,
}

// FlagFields lists every binary field: positions, events, then areas.
var FlagFields = concat(PositionFields, EventFields, AreaFields)

// LabelFields are the WeChat label columns.
var LabelFields = []Field{FieldLabel1, FieldLabel2, FieldLabel3, FieldLabel4, FieldLabel5}

// TextFields are trimmed during post-processing.
var TextFields = concat(
	[]Field{FieldDeadline, FieldDirection, FieldUniversityEN, FieldContactName, FieldContactEmail},
	[]Field{FieldUniversityCN, FieldCountryCN},
	LabelFields,
)

var stageFields = map[Stage][]Field{
	StageBasic: {
		FieldDeadline, FieldNumberPlaces, FieldDirection,
		FieldUniversityEN, FieldContactName, FieldContactEmail,
	},
	StageClassify: concat(PositionFields, EventFields, AreaFields),
	StageLocalize: concat([]Field{FieldUniversityCN, FieldCountryCN}, LabelFields),
}

// AllFields is the canonical field list in sheet order.
var AllFields = concat(stageFields[StageBasic], stageFields[StageClassify], stageFields[StageLocalize])

// FieldsFor returns the fields produced by a stage, or nil for an unknown stage.
func FieldsFor(s Stage) []Field {
	fields, ok := stageFields[s]
	if !ok {
		return nil
	}
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// IsFlag reports whether f is a binary "1"/"" field.
func IsFlag(f Field) bool {
	for _, ff := range FlagFields {
		if ff == f {
			return true
		}
	}
	return false
}

// Record is an extraction result keyed by field. Absent keys and empty
// values are distinct until post-processing completes the record.
type Record map[Field]string

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge copies every entry of other into r.
func (r Record) Merge(other Record) {
	for k, v := range other {
		r[k] = v
	}
}

// Get returns the value for f, or "" if absent.
func (r Record) Get(f Field) string {
	return r[f]
}

// Has reports whether f is present in r.
func (r Record) Has(f Field) bool {
	_, ok := r[f]
	return ok
}

// Flagged returns the subset of fields whose value is exactly "1".
func (r Record) Flagged(fields []Field) []Field {
	var out []Field
	for _, f := range fields {
		if r[f] == "1" {
			out = append(out, f)
		}
	}
	return out
}

// Strings converts r to a plain string map for JSON and sheet output.
func (r Record) Strings() map[string]string {
	out := make(map[string]string, len(r))
	for k, v := range r {
		out[string(k)] = v
	}
	return out
}

// RecordFromStrings builds a Record from a string map, keeping only the
// fields listed (all fields when none are given). Non-string values in
// LLM output are rendered by the caller before reaching here.
func RecordFromStrings(m map[string]string, only ...Field) Record {
	allowed := only
	if len(allowed) == 0 {
		allowed = AllFields
	}
	out := make(Record, len(allowed))
	for _, f := range allowed {
		if v, ok := m[string(f)]; ok {
			out[f] = v
		}
	}
	return out
}

// IsPlaceholder reports whether v is one of the "no value" markers the
// extraction prompts use.
func IsPlaceholder(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "-", "N/A":
		return true
	}
	return false
}

func concat(groups ...[]Field) []Field {
	var n int
	for _, g := range groups {
		n += len(g)
	}
	out := make([]Field, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
