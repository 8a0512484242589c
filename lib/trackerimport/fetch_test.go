package trackerimport

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fetchConn is a minimal driver connection serving canned rows for the
// two fetch queries, enough to exercise GetEvent's row mapping without
// a live database.
type fetchConn struct {
	eventRows     [][]driver.Value
	dataValueRows [][]driver.Value
}

func (c *fetchConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *fetchConn) Close() error { return nil }

func (c *fetchConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

func (c *fetchConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if strings.Contains(query, "eventdatavalue") {
		return &fetchRows{width: 3, rows: c.dataValueRows}, nil
	}
	return &fetchRows{width: 12, rows: c.eventRows}, nil
}

type fetchRows struct {
	width int
	rows  [][]driver.Value
	pos   int
}

func (r *fetchRows) Columns() []string { return make([]string, r.width) }
func (r *fetchRows) Close() error      { return nil }

func (r *fetchRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

type fetchDriver struct{}

func (fetchDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("open not supported")
}

type fetchConnector struct{ conn *fetchConn }

func (c fetchConnector) Connect(context.Context) (driver.Conn, error) { return c.conn, nil }
func (c fetchConnector) Driver() driver.Driver                        { return fetchDriver{} }

func fetchDB(t *testing.T, conn *fetchConn) *sql.DB {
	t.Helper()
	db := sql.OpenDB(fetchConnector{conn})
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetEventExposesOccurredAtAsEventDate(t *testing.T) {
	occurred := time.Date(2019, 8, 19, 0, 0, 0, 0, time.UTC)
	db := fetchDB(t, &fetchConn{
		// id, event, program, stage, enrollment, orgUnit, trackedEntity,
		// attributeOptionCombo, assignedUser, status, eventdate, deleted.
		eventRows: [][]driver.Value{{
			int64(42), "eventone123", "progone1234", "repeatstage",
			"enrollment1", "orgunitone1", nil, nil, nil,
			"ACTIVE", occurred, false,
		}},
		dataValueRows: [][]driver.Value{
			{"dataelement", "12", false},
		},
	})

	event, err := NewImporter(db, nil).GetEvent(context.Background(), "eventone123")
	require.NoError(t, err)
	require.NotNil(t, event)

	require.Equal(t, "eventone123", event.Event)
	require.Equal(t, "progone1234", event.Program)
	require.Equal(t, "repeatstage", event.ProgramStage)
	require.Equal(t, "enrollment1", event.Enrollment)
	require.Equal(t, "orgunitone1", event.OrgUnit)
	require.Empty(t, event.TrackedEntity)
	require.False(t, event.Deleted)
	require.Equal(t, "2019-08-19T00:00:00Z", event.EventDate)
	require.Equal(t, []DataValue{{DataElement: "dataelement", Value: "12"}}, event.DataValues)
}

func TestGetEventUnknownUID(t *testing.T) {
	db := fetchDB(t, &fetchConn{})

	event, err := NewImporter(db, nil).GetEvent(context.Background(), "nosuchevent")
	require.NoError(t, err)
	require.Nil(t, event)
}
