package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Category string `json:"category"`
	Locality string `json:"locality"`
	Status   string `json:"status"`
}

// Query describes a search request. IncludeDrafts is only set for reviewer
// roles; citizen searches never surface drafts.
type Query struct {
	Text           string
	FilterCategory string
	FilterLocality string
	Limit          int
	Offset         int
	IncludeDrafts  bool
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over proposals.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ProposalRecord is the data we index for a proposal.
type ProposalRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Locality    string `json:"locality"`
	Status      string `json:"status"`
}
