package trackerimport

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetEvent fetches one stored event by uid, including its data values.
// Returns nil without error when no such event exists.
func (imp *Importer) GetEvent(ctx context.Context, uid string) (*StoredEvent, error) {
	var (
		id         int64
		ev         StoredEvent
		enrollment sql.NullString
		trackedEnt sql.NullString
		combo      sql.NullString
		assigned   sql.NullString
		eventDate  sql.NullTime
	)
	err := imp.db.QueryRowContext(ctx, `
		SELECT psi.programstageinstanceid, psi.uid, p.uid, ps.uid,
		       pi.uid, ou.uid, tei.uid, coc.uid, u.username,
		       psi.status, psi.eventdate, psi.deleted
		FROM programstageinstance psi
		JOIN programstage ps ON ps.programstageid = psi.programstageid
		JOIN program p ON p.programid = ps.programid
		JOIN organisationunit ou ON ou.organisationunitid = psi.organisationunitid
		LEFT JOIN programinstance pi ON pi.programinstanceid = psi.programinstanceid
		LEFT JOIN trackedentityinstance tei ON tei.trackedentityinstanceid = pi.trackedentityinstanceid
		LEFT JOIN categoryoptioncombo coc ON coc.categoryoptioncomboid = psi.attributeoptioncomboid
		LEFT JOIN userinfo u ON u.userinfoid = psi.assigneduserid
		WHERE psi.uid = $1
	`, uid).Scan(&id, &ev.Event, &ev.Program, &ev.ProgramStage,
		&enrollment, &ev.OrgUnit, &trackedEnt, &combo, &assigned,
		&ev.Status, &eventDate, &ev.Deleted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching event %s: %w", uid, err)
	}
	ev.Enrollment = enrollment.String
	ev.TrackedEntity = trackedEnt.String
	ev.AttributeOptionCombo = combo.String
	ev.AssignedUser = assigned.String
	if eventDate.Valid {
		ev.EventDate = eventDate.Time.Format(time.RFC3339)
	}

	rows, err := imp.db.QueryContext(ctx, `
		SELECT de.uid, edv.value, edv.providedelsewhere
		FROM eventdatavalue edv
		JOIN dataelement de ON de.dataelementid = edv.dataelementid
		WHERE edv.programstageinstanceid = $1
		ORDER BY de.uid
	`, id)
	if err != nil {
		return nil, fmt.Errorf("fetching data values for event %s: %w", uid, err)
	}
	defer rows.Close()
	for rows.Next() {
		var dv DataValue
		var value sql.NullString
		if err := rows.Scan(&dv.DataElement, &value, &dv.ProvidedElsewhere); err != nil {
			return nil, fmt.Errorf("scanning data value row: %w", err)
		}
		dv.Value = value.String
		ev.DataValues = append(ev.DataValues, dv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading data value rows: %w", err)
	}
	return &ev, nil
}
