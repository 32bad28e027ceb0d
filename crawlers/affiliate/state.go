package affiliate

// Keys of the local scope.
const (
	keyUseAPI               = "useApi"
	keyIsCrawling           = "isCrawling"
	keyIsAutoCrawling       = "isAutoCrawling"
	keyStartTime            = "startTime"
	keyProcessCount         = "processCount"
	keyCrawlDurationSeconds = "crawlDurationSeconds"
	keyIsCompleted          = "isCompleted"
	keyCreatorIDs           = "creatorIds"
	keyCrawledCreators      = "crawledCreators"
	keyNotFoundCreators     = "notFoundCreators"
	keyCurrentCreatorIndex  = "currentCreatorIndex"
	keyRunID                = "runId"
)

// LocalState mirrors the local scope.
type LocalState struct {
	UseAPI               bool  `json:"useApi"`
	IsCrawling           bool  `json:"isCrawling"`
	IsAutoCrawling       bool  `json:"isAutoCrawling"`
	StartTime            int64 `json:"startTime"`
	ProcessCount         int   `json:"processCount"`
	CrawlDurationSeconds int64 `json:"crawlDurationSeconds"`
	// IsCompleted is set once the session finished and cleared by the next start.
	IsCompleted         bool            `json:"isCompleted"`
	CreatorIDs          []string        `json:"creatorIds"`
	CrawledCreators     []CreatorRecord `json:"crawledCreators"`
	NotFoundCreators    []string        `json:"notFoundCreators"`
	CurrentCreatorIndex int             `json:"currentCreatorIndex"`
	RunID               string          `json:"runId"`
}

// defaultLocalState is written on reset.
func defaultLocalState() map[string]any {
	return map[string]any{
		keyUseAPI:               false,
		keyIsCrawling:           false,
		keyIsAutoCrawling:       false,
		keyStartTime:            0,
		keyProcessCount:         0,
		keyCrawlDurationSeconds: 0,
		keyIsCompleted:          false,
		keyCreatorIDs:           []string{},
		keyCrawledCreators:      []CreatorRecord{},
		keyNotFoundCreators:     []string{},
		keyCurrentCreatorIndex:  0,
		keyRunID:                "",
	}
}
