package trackerimport

// ImportStatus is the overall outcome of an import run.
type ImportStatus string

const (
	StatusOK      = ImportStatus("OK")
	StatusWarning = ImportStatus("WARNING")
	StatusError   = ImportStatus("ERROR")
)

// Stats counts the per-object outcomes of a run.
type Stats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Ignored int `json:"ignored"`
}

// Total returns the number of objects the run touched, including the
// ignored ones.
func (s Stats) Total() int {
	return s.Created + s.Updated + s.Deleted + s.Ignored
}

func (s *Stats) add(other Stats) {
	s.Created += other.Created
	s.Updated += other.Updated
	s.Deleted += other.Deleted
	s.Ignored += other.Ignored
}

// ErrorReport is one validation failure attached to an object.
type ErrorReport struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

// ObjectReport collects the failures for a single submitted object,
// addressed by its identifier and its index in the submitted payload.
type ObjectReport struct {
	UID          string        `json:"uid"`
	Index        int           `json:"index"`
	ErrorReports []ErrorReport `json:"errorReports,omitempty"`
}

// TypeReport groups outcomes for one object type.
type TypeReport struct {
	Stats         Stats          `json:"stats"`
	ObjectReports []ObjectReport `json:"objectReports,omitempty"`
}

// BundleReport breaks the run down per object type.
type BundleReport struct {
	TypeReportMap map[string]TypeReport `json:"typeReportMap"`
}

// ImportSummary is the full report for one import run.
type ImportSummary struct {
	Status       ImportStatus `json:"status"`
	Stats        Stats        `json:"stats"`
	BundleReport BundleReport `json:"bundleReport"`
	Message      string       `json:"message,omitempty"`
}

const eventTypeKey = "EVENT"

func newSummary() *ImportSummary {
	return &ImportSummary{
		Status: StatusOK,
		BundleReport: BundleReport{
			TypeReportMap: map[string]TypeReport{},
		},
	}
}

func (s *ImportSummary) addEventReport(report TypeReport) {
	s.Stats.add(report.Stats)
	for _, object := range report.ObjectReports {
		if len(object.ErrorReports) > 0 {
			s.Status = StatusError
		}
	}
	s.BundleReport.TypeReportMap[eventTypeKey] = report
}
