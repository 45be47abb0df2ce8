// Package mutation defines the structured types emitted by domwatch.
// These are the public contract: any consumer imports this package to
// receive matches, mutation batches and snapshots.
package mutation

// Op is the type of DOM mutation observed.
type Op string

const (
	OpInsert   Op = "insert"    // node inserted (includes serialised subtree HTML)
	OpRemove   Op = "remove"    // node removed
	OpText     Op = "text"      // character data changed
	OpAttr     Op = "attr"      // attribute set
	OpAttrDel  Op = "attr_del"  // attribute removed
	OpDocReset Op = "doc_reset" // entire DOM replaced
)

// Record is a single DOM mutation.
type Record struct {
	Op       Op     `json:"op"`
	XPath    string `json:"xpath"`
	NodeType int    `json:"node_type,omitempty"` // 1=element, 3=text, 8=comment
	Tag      string `json:"tag,omitempty"`
	Name     string `json:"name,omitempty"`      // attribute name for attr/attr_del
	Value    string `json:"value,omitempty"`     // new value
	OldValue string `json:"old_value,omitempty"` // previous value
	HTML     string `json:"html,omitempty"`      // serialised subtree for insert
}

// Batch is all mutations collected during a single debounce window.
type Batch struct {
	ID          string   `json:"id"` // UUIDv7
	PageURL     string   `json:"page_url"`
	PageID      string   `json:"page_id"`
	Seq         uint64   `json:"seq"` // monotonically increasing per page (gap detection)
	Records     []Record `json:"records"`
	Timestamp   int64    `json:"timestamp"`    // epoch milliseconds at flush
	SnapshotRef string   `json:"snapshot_ref"` // ID of the last snapshot
}
