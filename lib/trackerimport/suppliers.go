package trackerimport

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Program is a resolved program reference with its stages keyed by
// stage identifier.
type Program struct {
	ID     int64
	UID    string
	Name   string
	Stages map[string]*ProgramStage
}

// ProgramStage is one stage within a resolved program.
type ProgramStage struct {
	ID         int64
	UID        string
	Repeatable bool
}

// OrgUnit is a resolved organisation unit reference.
type OrgUnit struct {
	ID  int64
	UID string
}

// TrackedEntity is a resolved tracked entity instance reference.
type TrackedEntity struct {
	ID  int64
	UID string
}

// Enrollment is a resolved program instance reference.
type Enrollment struct {
	ID        int64
	UID       string
	ProgramID int64
}

// CategoryOptionCombo is a resolved attribute option combo reference.
type CategoryOptionCombo struct {
	ID  int64
	UID string
}

// DataElementRef is a resolved data element reference.
type DataElementRef struct {
	ID        int64
	UID       string
	ValueType string
}

// UserRef is a resolved user reference, addressable by username.
type UserRef struct {
	ID       int64
	UID      string
	Username string
}

// ExistingEvent is a stored event matched by identifier during import.
type ExistingEvent struct {
	ID           int64
	UID          string
	EnrollmentID int64
	StageID      int64
	Deleted      bool
}

// ReferenceSource resolves all identifiers referenced across a batch.
// Every method is a single bulk lookup; implementations must tolerate
// identifiers that do not resolve by omitting them from the result map.
type ReferenceSource interface {
	Programs(ctx context.Context, uids []string) (map[string]*Program, error)
	OrgUnits(ctx context.Context, uids []string) (map[string]*OrgUnit, error)
	TrackedEntities(ctx context.Context, uids []string) (map[string]*TrackedEntity, error)
	Enrollments(ctx context.Context, uids []string) (map[string]*Enrollment, error)
	Events(ctx context.Context, uids []string) (map[string]*ExistingEvent, error)
	CategoryOptionCombos(ctx context.Context, uids []string) (map[string]*CategoryOptionCombo, error)
	DataElements(ctx context.Context, uids []string) (map[string]*DataElementRef, error)
	Users(ctx context.Context, usernames []string) (map[string]*UserRef, error)
	StageEventCounts(ctx context.Context, enrollmentUIDs []string) (map[string]map[string]int, error)
	Notes(ctx context.Context, uids []string) (map[string]struct{}, error)
}

// SQLReferenceSource resolves references against the metadata database.
type SQLReferenceSource struct {
	db *sql.DB
}

// NewSQLReferenceSource wraps a database handle as a ReferenceSource.
func NewSQLReferenceSource(db *sql.DB) *SQLReferenceSource {
	return &SQLReferenceSource{db: db}
}

func (s *SQLReferenceSource) Programs(ctx context.Context, uids []string) (map[string]*Program, error) {
	rv := map[string]*Program{}
	if len(uids) == 0 {
		return rv, nil
	}

	byID := map[int64]*Program{}
	rows, err := s.db.QueryContext(ctx, `
		SELECT programid, uid, "name"
		FROM program
		WHERE uid = ANY($1)
	`, pq.Array(uids))
	if err != nil {
		return nil, fmt.Errorf("querying programs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p := &Program{Stages: map[string]*ProgramStage{}}
		if err := rows.Scan(&p.ID, &p.UID, &p.Name); err != nil {
			return nil, fmt.Errorf("scanning program row: %w", err)
		}
		rv[p.UID] = p
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading program rows: %w", err)
	}

	if len(byID) == 0 {
		return rv, nil
	}
	programIDs := make([]int64, 0, len(byID))
	for id := range byID {
		programIDs = append(programIDs, id)
	}

	stageRows, err := s.db.QueryContext(ctx, `
		SELECT programstageid, uid, programid, repeatable
		FROM programstage
		WHERE programid = ANY($1)
	`, pq.Array(programIDs))
	if err != nil {
		return nil, fmt.Errorf("querying program stages: %w", err)
	}
	defer stageRows.Close()
	for stageRows.Next() {
		var stage ProgramStage
		var programID int64
		if err := stageRows.Scan(&stage.ID, &stage.UID, &programID, &stage.Repeatable); err != nil {
			return nil, fmt.Errorf("scanning program stage row: %w", err)
		}
		if p, ok := byID[programID]; ok {
			p.Stages[stage.UID] = &stage
		}
	}
	if err := stageRows.Err(); err != nil {
		return nil, fmt.Errorf("reading program stage rows: %w", err)
	}

	return rv, nil
}

func (s *SQLReferenceSource) OrgUnits(ctx context.Context, uids []string) (map[string]*OrgUnit, error) {
	rv := map[string]*OrgUnit{}
	err := s.bulkLookup(ctx, `
		SELECT organisationunitid, uid
		FROM organisationunit
		WHERE uid = ANY($1)
	`, uids, func(rows *sql.Rows) error {
		var ou OrgUnit
		if err := rows.Scan(&ou.ID, &ou.UID); err != nil {
			return err
		}
		rv[ou.UID] = &ou
		return nil
	})
	return rv, err
}

func (s *SQLReferenceSource) TrackedEntities(ctx context.Context, uids []string) (map[string]*TrackedEntity, error) {
	rv := map[string]*TrackedEntity{}
	err := s.bulkLookup(ctx, `
		SELECT trackedentityinstanceid, uid
		FROM trackedentityinstance
		WHERE uid = ANY($1)
	`, uids, func(rows *sql.Rows) error {
		var te TrackedEntity
		if err := rows.Scan(&te.ID, &te.UID); err != nil {
			return err
		}
		rv[te.UID] = &te
		return nil
	})
	return rv, err
}

func (s *SQLReferenceSource) Enrollments(ctx context.Context, uids []string) (map[string]*Enrollment, error) {
	rv := map[string]*Enrollment{}
	err := s.bulkLookup(ctx, `
		SELECT programinstanceid, uid, programid
		FROM programinstance
		WHERE uid = ANY($1)
	`, uids, func(rows *sql.Rows) error {
		var e Enrollment
		if err := rows.Scan(&e.ID, &e.UID, &e.ProgramID); err != nil {
			return err
		}
		rv[e.UID] = &e
		return nil
	})
	return rv, err
}

func (s *SQLReferenceSource) Events(ctx context.Context, uids []string) (map[string]*ExistingEvent, error) {
	rv := map[string]*ExistingEvent{}
	err := s.bulkLookup(ctx, `
		SELECT programstageinstanceid, uid, programinstanceid, programstageid, deleted
		FROM programstageinstance
		WHERE uid = ANY($1)
	`, uids, func(rows *sql.Rows) error {
		var ev ExistingEvent
		if err := rows.Scan(&ev.ID, &ev.UID, &ev.EnrollmentID, &ev.StageID, &ev.Deleted); err != nil {
			return err
		}
		rv[ev.UID] = &ev
		return nil
	})
	return rv, err
}

func (s *SQLReferenceSource) CategoryOptionCombos(ctx context.Context, uids []string) (map[string]*CategoryOptionCombo, error) {
	rv := map[string]*CategoryOptionCombo{}
	err := s.bulkLookup(ctx, `
		SELECT categoryoptioncomboid, uid
		FROM categoryoptioncombo
		WHERE uid = ANY($1)
	`, uids, func(rows *sql.Rows) error {
		var coc CategoryOptionCombo
		if err := rows.Scan(&coc.ID, &coc.UID); err != nil {
			return err
		}
		rv[coc.UID] = &coc
		return nil
	})
	return rv, err
}

func (s *SQLReferenceSource) DataElements(ctx context.Context, uids []string) (map[string]*DataElementRef, error) {
	rv := map[string]*DataElementRef{}
	err := s.bulkLookup(ctx, `
		SELECT dataelementid, uid, valuetype
		FROM dataelement
		WHERE uid = ANY($1)
	`, uids, func(rows *sql.Rows) error {
		var de DataElementRef
		if err := rows.Scan(&de.ID, &de.UID, &de.ValueType); err != nil {
			return err
		}
		rv[de.UID] = &de
		return nil
	})
	return rv, err
}

func (s *SQLReferenceSource) Users(ctx context.Context, usernames []string) (map[string]*UserRef, error) {
	rv := map[string]*UserRef{}
	err := s.bulkLookup(ctx, `
		SELECT userinfoid, uid, username
		FROM userinfo
		WHERE username = ANY($1)
	`, usernames, func(rows *sql.Rows) error {
		var u UserRef
		if err := rows.Scan(&u.ID, &u.UID, &u.Username); err != nil {
			return err
		}
		rv[u.Username] = &u
		return nil
	})
	return rv, err
}

// StageEventCounts returns, per enrollment identifier, how many stored
// events each stage already has. Used for the non-repeatable stage
// check.
func (s *SQLReferenceSource) StageEventCounts(ctx context.Context, enrollmentUIDs []string) (map[string]map[string]int, error) {
	rv := map[string]map[string]int{}
	err := s.bulkLookup(ctx, `
		SELECT pi.uid, ps.uid, COUNT(*)
		FROM programstageinstance psi
		JOIN programinstance pi ON pi.programinstanceid = psi.programinstanceid
		JOIN programstage ps ON ps.programstageid = psi.programstageid
		WHERE pi.uid = ANY($1)
		  AND NOT psi.deleted
		GROUP BY pi.uid, ps.uid
	`, enrollmentUIDs, func(rows *sql.Rows) error {
		var enrollmentUID, stageUID string
		var n int
		if err := rows.Scan(&enrollmentUID, &stageUID, &n); err != nil {
			return err
		}
		if rv[enrollmentUID] == nil {
			rv[enrollmentUID] = map[string]int{}
		}
		rv[enrollmentUID][stageUID] = n
		return nil
	})
	return rv, err
}

func (s *SQLReferenceSource) Notes(ctx context.Context, uids []string) (map[string]struct{}, error) {
	rv := map[string]struct{}{}
	err := s.bulkLookup(ctx, `
		SELECT uid
		FROM note
		WHERE uid = ANY($1)
	`, uids, func(rows *sql.Rows) error {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return err
		}
		rv[uid] = struct{}{}
		return nil
	})
	return rv, err
}

func (s *SQLReferenceSource) bulkLookup(ctx context.Context, query string, keys []string, scan func(*sql.Rows) error) error {
	if len(keys) == 0 {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("querying references: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scanning reference row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading reference rows: %w", err)
	}
	return nil
}
