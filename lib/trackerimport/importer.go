package trackerimport

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/NadeemAtDure/dhis2-core/lib/logging"
)

const (
	codeMissingProgram      = "missing_program"
	codeMissingProgramStage = "missing_program_stage"
	codeMissingOrgUnit      = "missing_org_unit"
	codeMissingEnrollment   = "missing_enrollment"
	codeMissingTrackedEnt   = "missing_tracked_entity"
	codeMissingOptionCombo  = "missing_attribute_option_combo"
	codeMissingDataElement  = "missing_data_element"
	codeMissingAssignedUser = "missing_assigned_user"
	codeInvalidOccurredAt   = "invalid_occurred_at"
	codeDuplicateEvent      = "duplicate_event"
	codeEventDeleted        = "event_deleted"
	codeEventExists         = "event_already_exists"
	codeEventNotFound       = "event_not_found"
	codeStageNotRepeatable  = "program_stage_not_repeatable"
)

var occurredAtLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

type eventOutcome int

const (
	outcomeIgnore eventOutcome = iota
	outcomeCreate
	outcomeUpdate
	outcomeDelete
)

type plannedEvent struct {
	event      *Event
	index      int
	outcome    eventOutcome
	existing   *ExistingEvent
	occurredAt *time.Time
	errors     []ErrorReport
}

// Importer validates a loaded batch against its work context and
// persists the surviving events in bulk.
type Importer struct {
	db   *sql.DB
	uids *UIDGenerator
}

// NewImporter returns an importer writing through the given handle.
func NewImporter(db *sql.DB, uids *UIDGenerator) *Importer {
	if uids == nil {
		uids = NewUIDGenerator()
	}
	return &Importer{db: db, uids: uids}
}

// Import runs one batch: plan every event, persist the plan unless the
// run is a dry run, and report per-object outcomes. Events that fail
// validation are ignored and reported; they never abort the batch.
func (imp *Importer) Import(ctx context.Context, work *WorkContext) (*ImportSummary, error) {
	logger := logging.FromContext(ctx)

	planned := imp.plan(work)

	report := TypeReport{}
	for _, p := range planned {
		switch p.outcome {
		case outcomeCreate:
			report.Stats.Created++
		case outcomeUpdate:
			report.Stats.Updated++
		case outcomeDelete:
			report.Stats.Deleted++
		case outcomeIgnore:
			report.Stats.Ignored++
		}
		if len(p.errors) > 0 {
			report.ObjectReports = append(report.ObjectReports, ObjectReport{
				UID:          p.event.Event,
				Index:        p.index,
				ErrorReports: p.errors,
			})
		}
	}

	if !work.Options.DryRun {
		if err := imp.persist(ctx, work, planned); err != nil {
			return nil, err
		}
	}

	summary := newSummary()
	summary.addEventReport(report)

	logger.Sugar().Infow("imported event batch",
		"status", summary.Status,
		"created", summary.Stats.Created,
		"updated", summary.Stats.Updated,
		"deleted", summary.Stats.Deleted,
		"ignored", summary.Stats.Ignored,
		"dryRun", work.Options.DryRun)

	return summary, nil
}

func (imp *Importer) plan(work *WorkContext) []*plannedEvent {
	// Events created earlier in the batch count toward the
	// non-repeatable stage check for later ones.
	batchStageEvents := map[string]map[string]int{}
	seenUIDs := map[string]bool{}

	var planned []*plannedEvent
	for i := range work.Events {
		ev := &work.Events[i]
		if seenUIDs[ev.Event] {
			// Later occurrences of a uid are ignored; letting them
			// through would abort the whole batch on the unique
			// constraint.
			planned = append(planned, &plannedEvent{
				event:   ev,
				index:   i,
				outcome: outcomeIgnore,
				errors: []ErrorReport{{
					Message:   fmt.Sprintf("Event %s appears more than once in the payload", ev.Event),
					ErrorCode: codeDuplicateEvent,
				}},
			})
			continue
		}
		seenUIDs[ev.Event] = true

		p := imp.planOne(work, ev, i, batchStageEvents)
		if p.outcome == outcomeCreate {
			if batchStageEvents[p.event.Enrollment] == nil {
				batchStageEvents[p.event.Enrollment] = map[string]int{}
			}
			batchStageEvents[p.event.Enrollment][p.event.ProgramStage]++
		}
		planned = append(planned, p)
	}
	return planned
}

func (imp *Importer) planOne(work *WorkContext, ev *Event, index int, batchStageEvents map[string]map[string]int) *plannedEvent {
	p := &plannedEvent{event: ev, index: index, outcome: outcomeIgnore}

	fail := func(code, format string, args ...interface{}) {
		p.errors = append(p.errors, ErrorReport{
			Message:   fmt.Sprintf(format, args...),
			ErrorCode: code,
		})
	}

	existing := work.ExistingEvents[ev.Event]
	p.existing = existing

	if work.Options.ImportStrategy == StrategyDelete {
		switch {
		case existing == nil || existing.Deleted:
			fail(codeEventNotFound, "Event %s does not exist or has already been deleted", ev.Event)
		default:
			p.outcome = outcomeDelete
		}
		return p
	}

	if existing != nil && existing.Deleted {
		fail(codeEventDeleted, "Event %s cannot be modified, it has been deleted", ev.Event)
		return p
	}

	program, ok := work.Programs[ev.Program]
	if !ok {
		fail(codeMissingProgram, "Program %s does not exist", ev.Program)
	}
	var stage *ProgramStage
	if program != nil {
		stage = program.Stages[ev.ProgramStage]
		if stage == nil {
			fail(codeMissingProgramStage, "Program stage %s does not exist in program %s", ev.ProgramStage, ev.Program)
		}
	}
	if _, ok := work.OrgUnits[ev.OrgUnit]; !ok {
		fail(codeMissingOrgUnit, "Organisation unit %s does not exist", ev.OrgUnit)
	}
	if ev.Enrollment != "" {
		if _, ok := work.Enrollments[ev.Enrollment]; !ok {
			fail(codeMissingEnrollment, "Enrollment %s does not exist", ev.Enrollment)
		}
	}
	if ev.TrackedEntity != "" {
		if _, ok := work.TrackedEntities[ev.TrackedEntity]; !ok {
			fail(codeMissingTrackedEnt, "Tracked entity %s does not exist", ev.TrackedEntity)
		}
	}
	if ev.AttributeOptionCombo != "" {
		if _, ok := work.CategoryOptionCombos[ev.AttributeOptionCombo]; !ok {
			fail(codeMissingOptionCombo, "Attribute option combo %s does not exist", ev.AttributeOptionCombo)
		}
	}
	if ev.AssignedUser != "" {
		if _, ok := work.AssignedUsers[ev.AssignedUser]; !ok {
			fail(codeMissingAssignedUser, "Assigned user %s does not exist", ev.AssignedUser)
		}
	}
	for _, dv := range ev.DataValues {
		if _, ok := work.DataElements[dv.DataElement]; !ok {
			fail(codeMissingDataElement, "Data element %s does not exist", dv.DataElement)
		}
	}
	if ev.OccurredAt != "" {
		t, err := parseOccurredAt(ev.OccurredAt)
		if err != nil {
			fail(codeInvalidOccurredAt, "Event date %q is not a valid date", ev.OccurredAt)
		} else {
			p.occurredAt = &t
		}
	}

	if len(p.errors) > 0 {
		return p
	}

	if existing != nil {
		if work.Options.ImportStrategy == StrategyCreate {
			fail(codeEventExists, "Event %s already exists", ev.Event)
			return p
		}
		p.outcome = outcomeUpdate
		return p
	}

	if work.Options.ImportStrategy == StrategyUpdate {
		fail(codeEventNotFound, "Event %s does not exist", ev.Event)
		return p
	}

	if stage != nil && !stage.Repeatable && ev.Enrollment != "" {
		stored := work.StageEventCounts[ev.Enrollment][ev.ProgramStage]
		inBatch := batchStageEvents[ev.Enrollment][ev.ProgramStage]
		if stored+inBatch > 0 {
			fail(codeStageNotRepeatable, "Program stage %s is not repeatable and an event already exists", ev.ProgramStage)
			return p
		}
	}

	p.outcome = outcomeCreate
	return p
}

func parseOccurredAt(s string) (time.Time, error) {
	for _, layout := range occurredAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date: %q", s)
}

func (imp *Importer) persist(ctx context.Context, work *WorkContext, planned []*plannedEvent) error {
	var creates, updates, deletes []*plannedEvent
	for _, p := range planned {
		switch p.outcome {
		case outcomeCreate:
			creates = append(creates, p)
		case outcomeUpdate:
			updates = append(updates, p)
		case outcomeDelete:
			deletes = append(deletes, p)
		}
	}
	if len(creates) == 0 && len(updates) == 0 && len(deletes) == 0 {
		return nil
	}

	tx, err := imp.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback()

	if err := imp.copyNewEvents(ctx, tx, work, creates); err != nil {
		return err
	}
	for _, p := range updates {
		if err := imp.updateEvent(ctx, tx, work, p); err != nil {
			return err
		}
	}
	for _, p := range deletes {
		if _, err := tx.ExecContext(ctx, `
			UPDATE programstageinstance
			SET deleted = TRUE, lastupdated = now()
			WHERE programstageinstanceid = $1
		`, p.existing.ID); err != nil {
			return fmt.Errorf("soft-deleting event %s: %w", p.event.Event, err)
		}
	}

	if err := imp.persistNotes(ctx, tx, work, append(creates, updates...)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import transaction: %w", err)
	}
	return nil
}

func (imp *Importer) copyNewEvents(ctx context.Context, tx *sql.Tx, work *WorkContext, creates []*plannedEvent) error {
	if len(creates) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("programstageinstance",
		"uid", "programinstanceid", "programstageid", "organisationunitid",
		"attributeoptioncomboid", "assigneduserid", "status", "eventdate", "storedby"))
	if err != nil {
		return fmt.Errorf("preparing event copy: %w", err)
	}

	for _, p := range creates {
		ev := p.event
		stage := work.Stage(ev.Program, ev.ProgramStage)
		var enrollmentID, comboID, userID interface{}
		if e := work.Enrollments[ev.Enrollment]; e != nil {
			enrollmentID = e.ID
		}
		if c := work.CategoryOptionCombos[ev.AttributeOptionCombo]; c != nil {
			comboID = c.ID
		}
		if u := work.AssignedUsers[ev.AssignedUser]; u != nil {
			userID = u.ID
		}
		status := ev.Status
		if status == "" {
			status = "ACTIVE"
		}
		var eventDate interface{}
		if p.occurredAt != nil {
			eventDate = *p.occurredAt
		}
		if _, err := stmt.ExecContext(ctx,
			ev.Event, enrollmentID, stage.ID, work.OrgUnits[ev.OrgUnit].ID,
			comboID, userID, status, eventDate, orNil(ev.StoredBy)); err != nil {
			return fmt.Errorf("copying event %s: %w", ev.Event, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flushing event copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("closing event copy: %w", err)
	}

	eventIDs, err := selectEventIDs(ctx, tx, creates)
	if err != nil {
		return err
	}

	return imp.copyDataValues(ctx, tx, work, creates, eventIDs)
}

func selectEventIDs(ctx context.Context, tx *sql.Tx, planned []*plannedEvent) (map[string]int64, error) {
	uids := make([]string, 0, len(planned))
	for _, p := range planned {
		uids = append(uids, p.event.Event)
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT uid, programstageinstanceid
		FROM programstageinstance
		WHERE uid = ANY($1)
	`, pq.Array(uids))
	if err != nil {
		return nil, fmt.Errorf("selecting inserted event ids: %w", err)
	}
	defer rows.Close()
	rv := map[string]int64{}
	for rows.Next() {
		var uid string
		var id int64
		if err := rows.Scan(&uid, &id); err != nil {
			return nil, fmt.Errorf("scanning event id row: %w", err)
		}
		rv[uid] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading event id rows: %w", err)
	}
	return rv, nil
}

func (imp *Importer) copyDataValues(ctx context.Context, tx *sql.Tx, work *WorkContext, creates []*plannedEvent, eventIDs map[string]int64) error {
	var n int
	for _, p := range creates {
		n += len(p.event.DataValues)
	}
	if n == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("eventdatavalue",
		"programstageinstanceid", "dataelementid", "value", "providedelsewhere", "storedby"))
	if err != nil {
		return fmt.Errorf("preparing data value copy: %w", err)
	}
	for _, p := range creates {
		eventID := eventIDs[p.event.Event]
		for _, dv := range p.event.DataValues {
			de := work.DataElements[dv.DataElement]
			if _, err := stmt.ExecContext(ctx,
				eventID, de.ID, dv.Value, dv.ProvidedElsewhere, orNil(p.event.StoredBy)); err != nil {
				return fmt.Errorf("copying data value for event %s: %w", p.event.Event, err)
			}
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flushing data value copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("closing data value copy: %w", err)
	}
	return nil
}

func (imp *Importer) updateEvent(ctx context.Context, tx *sql.Tx, work *WorkContext, p *plannedEvent) error {
	ev := p.event
	stage := work.Stage(ev.Program, ev.ProgramStage)
	var eventDate interface{}
	if p.occurredAt != nil {
		eventDate = *p.occurredAt
	}
	status := ev.Status
	if status == "" {
		status = "ACTIVE"
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE programstageinstance
		SET programstageid = $2,
		    organisationunitid = $3,
		    status = $4,
		    eventdate = $5,
		    lastupdated = now()
		WHERE programstageinstanceid = $1
	`, p.existing.ID, stage.ID, work.OrgUnits[ev.OrgUnit].ID, status, eventDate); err != nil {
		return fmt.Errorf("updating event %s: %w", ev.Event, err)
	}

	// Submitted values replace the stored set wholesale.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM eventdatavalue WHERE programstageinstanceid = $1
	`, p.existing.ID); err != nil {
		return fmt.Errorf("clearing data values for event %s: %w", ev.Event, err)
	}
	for _, dv := range ev.DataValues {
		de := work.DataElements[dv.DataElement]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO eventdatavalue (programstageinstanceid, dataelementid, value, providedelsewhere, storedby)
			VALUES ($1, $2, $3, $4, $5)
		`, p.existing.ID, de.ID, dv.Value, dv.ProvidedElsewhere, orNil(ev.StoredBy)); err != nil {
			return fmt.Errorf("inserting data value for event %s: %w", ev.Event, err)
		}
	}
	return nil
}

func (imp *Importer) persistNotes(ctx context.Context, tx *sql.Tx, work *WorkContext, persisted []*plannedEvent) error {
	type newNote struct {
		uid      string
		text     string
		eventUID string
	}
	var notes []newNote
	for _, p := range persisted {
		for _, note := range p.event.Notes {
			uid := note.Note
			if uid == "" {
				uid = imp.uids.Generate()
			} else if _, exists := work.ExistingNotes[uid]; exists {
				// Already-stored notes are immutable; resubmissions
				// are dropped silently.
				continue
			}
			notes = append(notes, newNote{uid: uid, text: note.Value, eventUID: p.event.Event})
		}
	}
	if len(notes) == 0 {
		return nil
	}

	for _, note := range notes {
		var eventID int64
		if err := tx.QueryRowContext(ctx, `
			SELECT programstageinstanceid FROM programstageinstance WHERE uid = $1
		`, note.eventUID).Scan(&eventID); err != nil {
			return fmt.Errorf("resolving event %s for note: %w", note.eventUID, err)
		}
		var noteID int64
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO note (uid, notetext) VALUES ($1, $2)
			RETURNING noteid
		`, note.uid, note.text).Scan(&noteID); err != nil {
			return fmt.Errorf("inserting note %s: %w", note.uid, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO programstageinstancenotes (programstageinstanceid, noteid)
			VALUES ($1, $2)
		`, eventID, noteID); err != nil {
			return fmt.Errorf("linking note %s: %w", note.uid, err)
		}
	}
	return nil
}

func orNil(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
