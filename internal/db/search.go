package db

// KNNQuery is the input for vector similarity search. Filter is a prebuilt
// FT.SEARCH prefilter expression (e.g. "@active:{1} @category:{dog}"); empty
// means the whole index.
type KNNQuery struct {
	IndexName    string
	Filter       string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hash hit from a search. Score carries the raw
// vector distance for KNN queries and is zero for list queries.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
