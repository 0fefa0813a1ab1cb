package nodeapi

// Node is one entry of the collector's node list or detail endpoint. Fields
// the collector omits decode to their zero value or nil; callers treat
// absence explicitly instead of failing on lookup.
type Node struct {
	Name   string   `json:"name"`
	IP     string   `json:"ip"`
	Group  string   `json:"group"`
	Model  string   `json:"model"`
	Status string   `json:"status"`
	MTime  string   `json:"mtime"`
	Time   *string  `json:"time"`
	Last   *LastRun `json:"last"`
}

// LastRun describes the most recent collection attempt for a node. The
// detail endpoint omits it entirely for nodes that were never collected.
type LastRun struct {
	Start  *string `json:"start"`
	End    *string `json:"end"`
	Status string  `json:"status"`
}

// Version is one stored configuration version of a node. Num is assigned by
// the reconciler, not the collector.
type Version struct {
	OID     string `json:"oid"`
	Date    string `json:"date"`
	Time    string `json:"time,omitempty"`
	Author  string `json:"author,omitempty"`
	Message string `json:"message,omitempty"`
	Num     int    `json:"num"`
}
