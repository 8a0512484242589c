// Package trackerimport implements the tracker event bulk-import
// pipeline: reference resolution across a whole batch, per-event
// validation against the resolved context, and bulk persistence with a
// per-object import report.
package trackerimport

// DataValue is one captured value within an event.
type DataValue struct {
	DataElement       string `json:"dataElement"`
	Value             string `json:"value"`
	ProvidedElsewhere bool   `json:"providedElsewhere,omitempty"`
}

// Note is a free-text comment attached to an event.
type Note struct {
	Note  string `json:"note,omitempty"`
	Value string `json:"value"`
}

// Event is one incoming data-capture occurrence. Dates travel as strings
// so the stored representation round-trips the submitted payload
// field-for-field; the submitted occurredAt is persisted and exposed as
// eventDate.
type Event struct {
	Event                string      `json:"event,omitempty"`
	Program              string      `json:"program"`
	ProgramStage         string      `json:"programStage"`
	Enrollment           string      `json:"enrollment,omitempty"`
	OrgUnit              string      `json:"orgUnit"`
	TrackedEntity        string      `json:"trackedEntity,omitempty"`
	AttributeOptionCombo string      `json:"attributeOptionCombo,omitempty"`
	AssignedUser         string      `json:"assignedUser,omitempty"`
	Status               string      `json:"status,omitempty"`
	OccurredAt           string      `json:"occurredAt,omitempty"`
	ScheduledAt          string      `json:"scheduledAt,omitempty"`
	StoredBy             string      `json:"storedBy,omitempty"`
	DataValues           []DataValue `json:"dataValues,omitempty"`
	Notes                []Note      `json:"notes,omitempty"`
	Deleted              bool        `json:"deleted,omitempty"`
}

// StoredEvent is the persisted representation returned when fetching an
// event by identifier.
type StoredEvent struct {
	Event                string      `json:"event"`
	Program              string      `json:"program"`
	ProgramStage         string      `json:"programStage"`
	Enrollment           string      `json:"enrollment,omitempty"`
	OrgUnit              string      `json:"orgUnit"`
	TrackedEntity        string      `json:"trackedEntity,omitempty"`
	AttributeOptionCombo string      `json:"attributeOptionCombo,omitempty"`
	AssignedUser         string      `json:"assignedUser,omitempty"`
	Status               string      `json:"status,omitempty"`
	EventDate            string      `json:"eventDate,omitempty"`
	DataValues           []DataValue `json:"dataValues,omitempty"`
	Deleted              bool        `json:"deleted"`
}

// ImportStrategy selects how incoming events map onto stored ones.
type ImportStrategy string

const (
	StrategyCreate          = ImportStrategy("CREATE")
	StrategyUpdate          = ImportStrategy("UPDATE")
	StrategyCreateAndUpdate = ImportStrategy("CREATE_AND_UPDATE")
	StrategyDelete          = ImportStrategy("DELETE")
)

// ImportOptions configures one import run. A nil options value gets the
// defaults substituted by the loader.
type ImportOptions struct {
	DryRun            bool           `json:"dryRun,omitempty"`
	SkipNotifications bool           `json:"skipNotifications,omitempty"`
	ImportStrategy    ImportStrategy `json:"importStrategy,omitempty"`
	AtomicMode        bool           `json:"atomicMode,omitempty"`
}

// DefaultImportOptions returns the options applied when the caller sends
// none.
func DefaultImportOptions() *ImportOptions {
	return &ImportOptions{
		ImportStrategy: StrategyCreateAndUpdate,
	}
}

func (o *ImportOptions) withDefaults() *ImportOptions {
	if o == nil {
		return DefaultImportOptions()
	}
	rv := *o
	if rv.ImportStrategy == "" {
		rv.ImportStrategy = StrategyCreateAndUpdate
	}
	return &rv
}
