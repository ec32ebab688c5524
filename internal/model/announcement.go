package model

import "time"

// Announcement is one message from the remote "announcements" collection.
// Timestamp is assigned by the server at post time; the client never sets it.
type Announcement struct {
	ID         string    `json:"id"`
	Message    string    `json:"message"`
	AuthorName string    `json:"author_name"`
	AuthorID   string    `json:"author_id"`
	Timestamp  time.Time `json:"timestamp"`
}
