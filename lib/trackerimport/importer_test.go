package trackerimport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func ancWorkContext(opts *ImportOptions, events []Event) *WorkContext {
	return &WorkContext{
		Options: opts.withDefaults(),
		Events:  events,
		Programs: map[string]*Program{
			"progone1234": {ID: 1, UID: "progone1234", Name: "ANC", Stages: map[string]*ProgramStage{
				"repeatstage": {ID: 10, UID: "repeatstage", Repeatable: true},
				"singlestage": {ID: 11, UID: "singlestage", Repeatable: false},
			}},
		},
		OrgUnits: map[string]*OrgUnit{
			"orgunitone1": {ID: 2, UID: "orgunitone1"},
		},
		Enrollments: map[string]*Enrollment{
			"enrollment1": {ID: 3, UID: "enrollment1", ProgramID: 1},
		},
		TrackedEntities:      map[string]*TrackedEntity{},
		ExistingEvents:       map[string]*ExistingEvent{},
		CategoryOptionCombos: map[string]*CategoryOptionCombo{},
		DataElements: map[string]*DataElementRef{
			"dataelement": {ID: 4, UID: "dataelement", ValueType: "NUMBER"},
		},
		AssignedUsers:    map[string]*UserRef{},
		StageEventCounts: map[string]map[string]int{},
		ExistingNotes:    map[string]struct{}{},
	}
}

func dryRunImport(t *testing.T, work *WorkContext) *ImportSummary {
	t.Helper()
	work.Options.DryRun = true

	summary, err := NewImporter(nil, nil).Import(context.Background(), work)
	require.NoError(t, err)
	return summary
}

func eventErrorReports(t *testing.T, summary *ImportSummary) []ObjectReport {
	t.Helper()
	report, ok := summary.BundleReport.TypeReportMap["EVENT"]
	require.True(t, ok, "summary missing EVENT type report")
	return report.ObjectReports
}

func TestImportCreatesNewEvent(t *testing.T) {
	work := ancWorkContext(nil, []Event{{
		Event:        "eventone123",
		Program:      "progone1234",
		ProgramStage: "repeatstage",
		OrgUnit:      "orgunitone1",
		Enrollment:   "enrollment1",
		OccurredAt:   "2019-08-19",
		DataValues:   []DataValue{{DataElement: "dataelement", Value: "12"}},
	}})

	summary := dryRunImport(t, work)

	require.Equal(t, StatusOK, summary.Status)
	require.Equal(t, Stats{Created: 1}, summary.Stats)
	require.Empty(t, eventErrorReports(t, summary))
}

func TestImportRepeatableStageCountsEach(t *testing.T) {
	template := Event{
		Program:      "progone1234",
		ProgramStage: "repeatstage",
		OrgUnit:      "orgunitone1",
		Enrollment:   "enrollment1",
		OccurredAt:   "2019-08-19",
	}
	first, second := template, template
	first.Event = "eventone123"
	second.Event = "eventtwo123"

	summary := dryRunImport(t, ancWorkContext(nil, []Event{first, second}))

	require.Equal(t, StatusOK, summary.Status)
	require.Equal(t, 2, summary.Stats.Created)
}

func TestImportNonRepeatableStageRejectsSecondEvent(t *testing.T) {
	template := Event{
		Program:      "progone1234",
		ProgramStage: "singlestage",
		OrgUnit:      "orgunitone1",
		Enrollment:   "enrollment1",
	}
	first, second := template, template
	first.Event = "eventone123"
	second.Event = "eventtwo123"

	summary := dryRunImport(t, ancWorkContext(nil, []Event{first, second}))

	require.Equal(t, StatusError, summary.Status)
	require.Equal(t, 1, summary.Stats.Created)
	require.Equal(t, 1, summary.Stats.Ignored)

	reports := eventErrorReports(t, summary)
	require.Len(t, reports, 1)
	require.Equal(t, "eventtwo123", reports[0].UID)
	require.Equal(t, codeStageNotRepeatable, reports[0].ErrorReports[0].ErrorCode)
}

func TestImportRejectsDuplicateUIDWithinBatch(t *testing.T) {
	template := Event{
		Event:        "eventone123",
		Program:      "progone1234",
		ProgramStage: "repeatstage",
		OrgUnit:      "orgunitone1",
		Enrollment:   "enrollment1",
		OccurredAt:   "2019-08-19",
	}

	summary := dryRunImport(t, ancWorkContext(nil, []Event{template, template}))

	require.Equal(t, StatusError, summary.Status)
	require.Equal(t, 1, summary.Stats.Created)
	require.Equal(t, 1, summary.Stats.Ignored)

	reports := eventErrorReports(t, summary)
	require.Len(t, reports, 1)
	require.Equal(t, 1, reports[0].Index)
	require.Equal(t, codeDuplicateEvent, reports[0].ErrorReports[0].ErrorCode)
}

func TestImportNonRepeatableStageRejectsStoredDuplicate(t *testing.T) {
	work := ancWorkContext(nil, []Event{{
		Event:        "eventone123",
		Program:      "progone1234",
		ProgramStage: "singlestage",
		OrgUnit:      "orgunitone1",
		Enrollment:   "enrollment1",
	}})
	work.StageEventCounts = map[string]map[string]int{
		"enrollment1": {"singlestage": 1},
	}

	summary := dryRunImport(t, work)

	require.Equal(t, StatusError, summary.Status)
	require.Equal(t, Stats{Ignored: 1}, summary.Stats)
}

func TestImportSoftDeletedEventCannotBeModified(t *testing.T) {
	work := ancWorkContext(nil, []Event{{
		Event:        "deletedevent",
		Program:      "progone1234",
		ProgramStage: "repeatstage",
		OrgUnit:      "orgunitone1",
	}})
	work.ExistingEvents = map[string]*ExistingEvent{
		"deletedevent": {ID: 99, UID: "deletedevent", Deleted: true},
	}

	summary := dryRunImport(t, work)

	require.Equal(t, StatusError, summary.Status)
	require.Equal(t, Stats{Ignored: 1}, summary.Stats)

	reports := eventErrorReports(t, summary)
	require.Len(t, reports, 1)
	require.Equal(t, codeEventDeleted, reports[0].ErrorReports[0].ErrorCode)
}

func TestImportExistingEventUpdates(t *testing.T) {
	work := ancWorkContext(nil, []Event{{
		Event:        "storedEvent1",
		Program:      "progone1234",
		ProgramStage: "repeatstage",
		OrgUnit:      "orgunitone1",
	}})
	work.ExistingEvents = map[string]*ExistingEvent{
		"storedEvent1": {ID: 99, UID: "storedEvent1"},
	}

	summary := dryRunImport(t, work)

	require.Equal(t, StatusOK, summary.Status)
	require.Equal(t, Stats{Updated: 1}, summary.Stats)
}

func TestImportCreateStrategyRejectsExisting(t *testing.T) {
	opts := &ImportOptions{ImportStrategy: StrategyCreate}
	work := ancWorkContext(opts, []Event{{
		Event:        "storedEvent1",
		Program:      "progone1234",
		ProgramStage: "repeatstage",
		OrgUnit:      "orgunitone1",
	}})
	work.ExistingEvents = map[string]*ExistingEvent{
		"storedEvent1": {ID: 99, UID: "storedEvent1"},
	}

	summary := dryRunImport(t, work)

	require.Equal(t, StatusError, summary.Status)
	require.Equal(t, Stats{Ignored: 1}, summary.Stats)
	require.Equal(t, codeEventExists, eventErrorReports(t, summary)[0].ErrorReports[0].ErrorCode)
}

func TestImportUpdateStrategyRejectsUnknown(t *testing.T) {
	opts := &ImportOptions{ImportStrategy: StrategyUpdate}
	work := ancWorkContext(opts, []Event{{
		Event:        "neverseen123",
		Program:      "progone1234",
		ProgramStage: "repeatstage",
		OrgUnit:      "orgunitone1",
	}})

	summary := dryRunImport(t, work)

	require.Equal(t, StatusError, summary.Status)
	require.Equal(t, codeEventNotFound, eventErrorReports(t, summary)[0].ErrorReports[0].ErrorCode)
}

func TestImportDeleteStrategy(t *testing.T) {
	opts := &ImportOptions{ImportStrategy: StrategyDelete}
	work := ancWorkContext(opts, []Event{
		{Event: "storedEvent1"},
		{Event: "neverseen123"},
	})
	work.ExistingEvents = map[string]*ExistingEvent{
		"storedEvent1": {ID: 99, UID: "storedEvent1"},
	}

	summary := dryRunImport(t, work)

	require.Equal(t, StatusError, summary.Status)
	require.Equal(t, 1, summary.Stats.Deleted)
	require.Equal(t, 1, summary.Stats.Ignored)
}

func TestImportCollectsAllReferenceErrors(t *testing.T) {
	work := ancWorkContext(nil, []Event{{
		Event:        "eventone123",
		Program:      "nosuchprog1",
		ProgramStage: "nosuchstage",
		OrgUnit:      "nosuchorg11",
		DataValues:   []DataValue{{DataElement: "nosuchde111", Value: "1"}},
		OccurredAt:   "not-a-date",
	}})

	summary := dryRunImport(t, work)

	require.Equal(t, StatusError, summary.Status)
	require.Equal(t, Stats{Ignored: 1}, summary.Stats)

	reports := eventErrorReports(t, summary)
	require.Len(t, reports, 1)

	var codes []string
	for _, er := range reports[0].ErrorReports {
		codes = append(codes, er.ErrorCode)
	}
	require.Contains(t, codes, codeMissingProgram)
	require.Contains(t, codes, codeMissingOrgUnit)
	require.Contains(t, codes, codeMissingDataElement)
	require.Contains(t, codes, codeInvalidOccurredAt)
}

func TestImportReportIndexesFollowPayloadOrder(t *testing.T) {
	work := ancWorkContext(nil, []Event{
		{
			Event:        "eventone123",
			Program:      "progone1234",
			ProgramStage: "repeatstage",
			OrgUnit:      "orgunitone1",
		},
		{
			Event:   "eventtwo123",
			Program: "nosuchprog1",
			OrgUnit: "orgunitone1",
		},
	})

	summary := dryRunImport(t, work)

	reports := eventErrorReports(t, summary)
	require.Len(t, reports, 1)
	require.Equal(t, 1, reports[0].Index)
	require.Equal(t, "eventtwo123", reports[0].UID)
}

func TestParseOccurredAtLayouts(t *testing.T) {
	for _, ok := range []string{"2019-08-19", "2019-08-19T10:30:00", "2019-08-19T10:30:00Z"} {
		if _, err := parseOccurredAt(ok); err != nil {
			t.Errorf("parseOccurredAt(%q) failed: %v", ok, err)
		}
	}
	if _, err := parseOccurredAt("19/08/2019"); err == nil {
		t.Error("expected failure for unsupported layout")
	}
}
