package domain

import "time"

// AIInteraction records one tutoring exchange and the chunks it was grounded on.
type AIInteraction struct {
	ID              string
	OrgID           string
	UserID          string
	CourseID        string
	Query           string
	ContextChunkIDs []string
	Answer          string
	UsedFallback    bool
	CreatedAt       time.Time
}
