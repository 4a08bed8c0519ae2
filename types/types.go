package types

// MirrorJob - One mirror invocation. Immutable after creation.
type MirrorJob struct {
	RootURL string `json:"root_url"`
	Origin  string `json:"origin"`   // scheme://host[:port]
	Host    string `json:"host"`     // host[:port] of the root URL
	RootDir string `json:"root_dir"` // Mirror root, e.g. "./example.com_files"
}

// FetchResult - Response from a single fetch
type FetchResult struct {
	URL         string `json:"url"` // Effective URL after redirects
	ContentType string `json:"content_type"`
	Body        []byte `json:"-"`
	StatusCode  int    `json:"status_code"`
	// OriginalURL is set only if a redirect occurred. It represents the initial URL before any redirects.
	OriginalURL string `json:"original_url,omitempty"`
}

// StoredAsset - A payload persisted under the mirror root
type StoredAsset struct {
	Category    string `json:"category"`
	Fingerprint string `json:"fingerprint"` // Full hex SHA-256 of the payload
	RelPath     string `json:"rel_path"`    // Slash separated, relative to the mirror root
	Size        int    `json:"size"`
	SourceURL   string `json:"source_url"`
}

// NodeID - Index of an element node in document order
type NodeID int

// ReferenceKind - Where a reference lives inside its element
type ReferenceKind int

const (
	// KindAttr is a whole attribute value such as img[src].
	KindAttr ReferenceKind = iota
	// KindStyleAttr is a url(...) token inside an inline style attribute.
	KindStyleAttr
	// KindStyleText is a url(...) token inside <style> element text.
	KindStyleText
	// KindSrcset is one candidate URL inside a srcset attribute.
	KindSrcset
)

func (k ReferenceKind) String() string {
	switch k {
	case KindAttr:
		return "attr"
	case KindStyleAttr:
		return "style-attr"
	case KindStyleText:
		return "style-text"
	case KindSrcset:
		return "srcset"
	default:
		return "unknown"
	}
}

// DocumentReference - A document location whose value is a URL to localize
type DocumentReference struct {
	Node   NodeID        `json:"node"`
	Kind   ReferenceKind `json:"kind"`
	Tag    string        `json:"tag"`
	Attr   string        `json:"attr,omitempty"` // Empty for KindStyleText
	Raw    string        `json:"raw"`            // URL text as written in the document
	Match  string        `json:"match"`          // Full url(...) token for style kinds, Raw otherwise
	Offset int           `json:"offset"`         // Byte offset of Match within its text
	URL    string        `json:"url"`            // Absolute URL
}

// MirrorStats - Counters for one mirror run
type MirrorStats struct {
	References    int `json:"references"`
	Rewritten     int `json:"rewritten"`
	Skipped       int `json:"skipped"`
	StorageFailed int `json:"storage_failed"`
	AssetsFetched int `json:"assets_fetched"`
}

// MirrorResult - Outcome of a completed mirror run
type MirrorResult struct {
	RootURL   string      `json:"root_url"`
	Root      string      `json:"root"`       // Absolute mirror root
	EntryPath string      `json:"entry_path"` // Absolute path of the rewritten entry document
	Stats     MirrorStats `json:"stats"`
}
