package entity

// TabStatus is the lifecycle state of an agent-owned tab.
type TabStatus string

const (
	TabPending    TabStatus = "pending"
	TabRunning    TabStatus = "running"
	TabExtracting TabStatus = "extracting"
	TabDone       TabStatus = "done"
	TabError      TabStatus = "error"
)

// TabID is the opaque integer identifier minted by the browser for a tab.
type TabID int64

// Tab is the state record the Tab Registry owns for one agent-controlled
// browser tab. Only the registry mutates it; callers see copies.
type Tab struct {
	ID              TabID
	Attached        bool
	URL             string
	Title           string
	TaskDescription string
	Status          TabStatus
	ExtractedData   string
	Error           string
}

// TabStatePatch carries the subset of Tab fields an updateState call wants
// to change; zero-value fields are left untouched by the registry.
type TabStatePatch struct {
	URL           *string
	Title         *string
	Status        *TabStatus
	ExtractedData *string
	Error         *string
	Attached      *bool
}
