package mutation

// Source tells which producer delivered a match.
type Source string

const (
	SourceScan Source = "scan" // present when the subscription started
	SourceFeed Source = "feed" // inserted afterwards
)

// Match is one element delivered to a rule's subscription. Each element is
// reported at most once per subscription.
type Match struct {
	ID             string `json:"id"` // UUIDv7
	SubscriptionID string `json:"subscription_id"`
	PageID         string `json:"page_id"`
	PageURL        string `json:"page_url"`
	Rule           string `json:"rule"`
	Selector       string `json:"selector"`
	Once           bool   `json:"once,omitempty"`
	XPath          string `json:"xpath"`
	Tag            string `json:"tag"`
	HTML           string `json:"html,omitempty"`
	Markdown       string `json:"markdown,omitempty"`
	Source         Source `json:"source"`
	Seq            uint64 `json:"seq"`       // per subscription, starts at 1
	Timestamp      int64  `json:"timestamp"` // epoch milliseconds
}
