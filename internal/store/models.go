package store

import "time"

type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusRunning, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

type EventType string

const (
	EventView       EventType = "view"
	EventClick      EventType = "click"
	EventConversion EventType = "conversion"
)

func (t EventType) Valid() bool {
	return t == EventView || t == EventClick || t == EventConversion
}

type Experiment struct {
	ID                  int64
	Name                string
	Description         string
	Goal                string
	Status              Status
	SplitA              int // percentage of visitors routed to variant A
	AutoWinnerEnabled   bool
	AutoWinnerThreshold int
	AutoWinnerDays      int
	WinnerVariant       string // set on completion by auto-winner
	StartDate           *time.Time
	EndDate             *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Variants            []Variant // ordered by Key
}

// TotalClicks sums clicks across all variants.
func (e *Experiment) TotalClicks() int64 {
	var n int64
	for _, v := range e.Variants {
		n += v.Clicks
	}
	return n
}

type Variant struct {
	ID           int64
	ExperimentID int64
	Key          string
	Title        string
	Subtitle     string
	Description  string
	ButtonText   string
	ButtonLink   string
	Impressions  int64
	Clicks       int64
	Conversions  int64
}

type Event struct {
	ID           int64
	ExperimentID int64
	VariantKey   string
	Type         EventType
	VisitorHash  string
	DeviceType   string
	CreatedAt    time.Time
}

// GlobalConfig is the singleton settings row. New experiments copy the
// split and auto-winner defaults from it.
type GlobalConfig struct {
	Active              bool
	DefaultSplit        int
	AutoWinnerEnabled   bool
	AutoWinnerThreshold int
	AutoWinnerDays      int
	UpdatedAt           time.Time
}

// SegmentCount is an event tally for one variant and device class.
type SegmentCount struct {
	VariantKey  string
	DeviceType  string
	Impressions int64
	Clicks      int64
	Conversions int64
}
