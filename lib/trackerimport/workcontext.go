package trackerimport

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/NadeemAtDure/dhis2-core/lib/logging"
)

// WorkContext holds everything one import run needs: the options, the
// batch with identifiers assigned, and every referenced entity resolved
// up front. It is built once by the loader and read-only afterwards.
type WorkContext struct {
	Options *ImportOptions
	Events  []Event

	Programs             map[string]*Program
	OrgUnits             map[string]*OrgUnit
	TrackedEntities      map[string]*TrackedEntity
	Enrollments          map[string]*Enrollment
	ExistingEvents       map[string]*ExistingEvent
	CategoryOptionCombos map[string]*CategoryOptionCombo
	DataElements         map[string]*DataElementRef
	AssignedUsers        map[string]*UserRef
	StageEventCounts     map[string]map[string]int
	ExistingNotes        map[string]struct{}
}

// Stage looks up a stage reference through its program.
func (w *WorkContext) Stage(programUID, stageUID string) *ProgramStage {
	p, ok := w.Programs[programUID]
	if !ok {
		return nil
	}
	return p.Stages[stageUID]
}

// WorkContextLoader assembles a WorkContext from an incoming batch.
type WorkContextLoader struct {
	source ReferenceSource
	uids   *UIDGenerator
}

// NewWorkContextLoader returns a loader resolving references through
// the given source.
func NewWorkContextLoader(source ReferenceSource, uids *UIDGenerator) *WorkContextLoader {
	if uids == nil {
		uids = NewUIDGenerator()
	}
	return &WorkContextLoader{source: source, uids: uids}
}

// Load assigns identifiers to events that lack one, then resolves every
// reference across the batch with one bulk lookup per entity kind, the
// lookups running concurrently. Supplier failures are aggregated rather
// than returned first-failure-only.
func (l *WorkContextLoader) Load(ctx context.Context, opts *ImportOptions, events []Event) (*WorkContext, error) {
	logger := logging.FromContext(ctx)

	work := &WorkContext{
		Options: opts.withDefaults(),
		Events:  make([]Event, len(events)),
	}
	copy(work.Events, events)
	for i := range work.Events {
		if work.Events[i].Event == "" {
			work.Events[i].Event = l.uids.Generate()
		}
	}

	var (
		eventUIDs      []string
		programUIDs    []string
		orgUnitUIDs    []string
		trackedUIDs    []string
		enrollmentUIDs []string
		comboUIDs      []string
		elementUIDs    []string
		usernames      []string
		noteUIDs       []string
	)
	{
		seen := newIdentifierSets()
		for _, ev := range work.Events {
			seen.add("event", ev.Event)
			seen.add("program", ev.Program)
			seen.add("orgUnit", ev.OrgUnit)
			seen.add("trackedEntity", ev.TrackedEntity)
			seen.add("enrollment", ev.Enrollment)
			seen.add("combo", ev.AttributeOptionCombo)
			seen.add("user", ev.AssignedUser)
			for _, dv := range ev.DataValues {
				seen.add("dataElement", dv.DataElement)
			}
			for _, note := range ev.Notes {
				seen.add("note", note.Note)
			}
		}
		eventUIDs = seen.sorted("event")
		programUIDs = seen.sorted("program")
		orgUnitUIDs = seen.sorted("orgUnit")
		trackedUIDs = seen.sorted("trackedEntity")
		enrollmentUIDs = seen.sorted("enrollment")
		comboUIDs = seen.sorted("combo")
		usernames = seen.sorted("user")
		elementUIDs = seen.sorted("dataElement")
		noteUIDs = seen.sorted("note")
	}

	var (
		grp, grpCtx = errgroup.WithContext(ctx)
		mu          sync.Mutex
		merr        *multierror.Error
	)
	// Every supplier runs to completion so a report of a failed load
	// names all failing lookups, not just the first.
	resolve := func(f func(ctx context.Context) error) {
		grp.Go(func() error {
			if err := f(grpCtx); err != nil {
				mu.Lock()
				merr = multierror.Append(merr, err)
				mu.Unlock()
			}
			return nil
		})
	}
	resolve(func(ctx context.Context) error {
		var err error
		work.Programs, err = l.source.Programs(ctx, programUIDs)
		return err
	})
	resolve(func(ctx context.Context) error {
		var err error
		work.OrgUnits, err = l.source.OrgUnits(ctx, orgUnitUIDs)
		return err
	})
	resolve(func(ctx context.Context) error {
		var err error
		work.TrackedEntities, err = l.source.TrackedEntities(ctx, trackedUIDs)
		return err
	})
	resolve(func(ctx context.Context) error {
		var err error
		work.Enrollments, err = l.source.Enrollments(ctx, enrollmentUIDs)
		return err
	})
	resolve(func(ctx context.Context) error {
		var err error
		work.ExistingEvents, err = l.source.Events(ctx, eventUIDs)
		return err
	})
	resolve(func(ctx context.Context) error {
		var err error
		work.CategoryOptionCombos, err = l.source.CategoryOptionCombos(ctx, comboUIDs)
		return err
	})
	resolve(func(ctx context.Context) error {
		var err error
		work.DataElements, err = l.source.DataElements(ctx, elementUIDs)
		return err
	})
	resolve(func(ctx context.Context) error {
		var err error
		work.AssignedUsers, err = l.source.Users(ctx, usernames)
		return err
	})
	resolve(func(ctx context.Context) error {
		var err error
		work.StageEventCounts, err = l.source.StageEventCounts(ctx, enrollmentUIDs)
		return err
	})
	resolve(func(ctx context.Context) error {
		var err error
		work.ExistingNotes, err = l.source.Notes(ctx, noteUIDs)
		return err
	})

	_ = grp.Wait()
	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}

	logger.Sugar().Debugw("loaded import work context",
		"events", len(work.Events),
		"programs", len(work.Programs),
		"orgUnits", len(work.OrgUnits),
		"existingEvents", len(work.ExistingEvents))

	return work, nil
}

type identifierSets struct {
	sets map[string]map[string]struct{}
}

func newIdentifierSets() *identifierSets {
	return &identifierSets{sets: map[string]map[string]struct{}{}}
}

func (s *identifierSets) add(kind, value string) {
	if value == "" {
		return
	}
	if s.sets[kind] == nil {
		s.sets[kind] = map[string]struct{}{}
	}
	s.sets[kind][value] = struct{}{}
}

func (s *identifierSets) sorted(kind string) []string {
	var rv []string
	for value := range s.sets[kind] {
		rv = append(rv, value)
	}
	sort.Strings(rv)
	return rv
}
