package constants

// ActionType names a command accepted by the crawler.
type ActionType string

const (
	StartCrawlingAction    ActionType = "start_crawling"
	ContinueCrawlingAction ActionType = "continue_crawling"
	StopCrawlingAction     ActionType = "stop_crawling"
	ResetCrawlingAction    ActionType = "reset_crawling"
)
