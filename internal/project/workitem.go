package project

// WorkItemKind discriminates the work item union.
type WorkItemKind int

const (
	// WorkUpdate asks for a project's derived state to be recomputed.
	WorkUpdate WorkItemKind = iota
	// WorkRemoval asks for a project's published state to be torn down.
	WorkRemoval
)

// String returns the string representation of the work item kind.
func (k WorkItemKind) String() string {
	switch k {
	case WorkUpdate:
		return "update"
	case WorkRemoval:
		return "removal"
	default:
		return "unknown"
	}
}

// WorkItem is the unit of work flowing from the change detector to the
// state updater. Items coalesce by Key in the work queue; only the most
// recent item per key survives the debounce window.
type WorkItem struct {
	Kind WorkItemKind
	Key  Key
	// WorkspaceID carries the transient live-project identity for updates;
	// it may be empty when the project is being torn down.
	WorkspaceID string
	// OutputDir carries the last known output directory for removals; the
	// project object itself is already gone by the time removal runs.
	OutputDir string
}

// UpdateItem builds an update work item.
func UpdateItem(key Key, workspaceID string) WorkItem {
	return WorkItem{Kind: WorkUpdate, Key: key, WorkspaceID: workspaceID}
}

// RemovalItem builds a removal work item.
func RemovalItem(key Key, outputDir string) WorkItem {
	return WorkItem{Kind: WorkRemoval, Key: key, OutputDir: outputDir}
}
