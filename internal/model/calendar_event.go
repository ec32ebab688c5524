package model

// CalendarEvent is one event document from the remote "events" collection.
// Date is an ISO calendar day ("2006-01-02"); StartTime and EndTime are
// 24-hour "HH:MM" strings and may be empty for untimed events.
type CalendarEvent struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Location    string `json:"location"`
	Description string `json:"description"`
}
