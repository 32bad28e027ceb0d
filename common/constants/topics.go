package constants

const (
	// CrawlerCommandSubject carries {action, payload} command messages.
	CrawlerCommandSubject = "creator.crawler.command"
	// NotificationSubject carries user-facing status notifications.
	NotificationSubject = "notifications.crawler"
	// CrawlerEventsStream is the JetStream stream holding crawl outcome events.
	CrawlerEventsStream = "CREATOR_CRAWLER_EVENTS"
	// CrawlerEventsSubjects is the wildcard bound to CrawlerEventsStream.
	CrawlerEventsSubjects = "creator.crawler.events.>"
	// CrawlCompletedSubject receives one summary per finished session.
	CrawlCompletedSubject = "creator.crawler.events.completed"
	// CreatorCrawledSubject receives every crawled creator record.
	CreatorCrawledSubject = "creator.crawler.events.creator"
)
