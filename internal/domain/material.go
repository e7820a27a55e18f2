package domain

import (
	"fmt"
	"time"
)

// MaterialStatus tracks a material through the chunk and embed pipeline.
type MaterialStatus string

const (
	MaterialStatusUnprocessed MaterialStatus = "unprocessed"
	MaterialStatusChunked     MaterialStatus = "chunked"
	MaterialStatusEmbedded    MaterialStatus = "embedded"
	MaterialStatusFailed      MaterialStatus = "failed"
)

var materialTransitions = map[MaterialStatus][]MaterialStatus{
	MaterialStatusUnprocessed: {MaterialStatusChunked},
	MaterialStatusChunked:     {MaterialStatusChunked, MaterialStatusEmbedded},
	MaterialStatusEmbedded:    {MaterialStatusEmbedded, MaterialStatusChunked},
	MaterialStatusFailed:      {MaterialStatusUnprocessed, MaterialStatusChunked},
}

// CanTransition reports whether a material may move from one status to another.
// Any status may move to failed.
func CanTransition(from, to MaterialStatus) bool {
	if !isValidMaterialStatus(from) || !isValidMaterialStatus(to) {
		return false
	}
	if to == MaterialStatusFailed {
		return true
	}
	for _, next := range materialTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidStatusTransition when the move is not allowed.
func CheckTransition(from, to MaterialStatus) error {
	if !CanTransition(from, to) {
		return NewDomainErrorWithCause(ErrCodeIntegrityViolation, ErrInvalidStatusTransition.Message,
			fmt.Errorf("%s -> %s", from, to))
	}
	return nil
}

// Material is an uploaded learning resource. OrgID and CourseID are
// denormalized from the topic hierarchy.
type Material struct {
	ID         string
	OrgID      string
	CourseID   string
	TopicID    string
	Title      string
	FileType   string
	FileSize   int64
	StorageKey string
	Text       string
	Status     MaterialStatus
	RetryCount int32
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ValidateMaterial validates a Material instance
func ValidateMaterial(m *Material) error {
	if m == nil {
		return fmt.Errorf("material cannot be nil")
	}
	if m.ID == "" {
		return fmt.Errorf("material ID is required")
	}
	if m.OrgID == "" {
		return fmt.Errorf("material OrgID is required")
	}
	if m.CourseID == "" {
		return fmt.Errorf("material CourseID is required")
	}
	if m.Title == "" {
		return fmt.Errorf("material Title is required")
	}
	if !isValidMaterialStatus(m.Status) {
		return fmt.Errorf("material Status is invalid: %s", m.Status)
	}
	if m.Text == "" && m.StorageKey == "" {
		return fmt.Errorf("material must have either Text or StorageKey")
	}
	return nil
}

func isValidMaterialStatus(s MaterialStatus) bool {
	switch s {
	case MaterialStatusUnprocessed, MaterialStatusChunked,
		MaterialStatusEmbedded, MaterialStatusFailed:
		return true
	}
	return false
}

// MaterialStats summarizes pipeline progress for an organization.
type MaterialStats struct {
	ByStatus            map[MaterialStatus]int
	TotalChunks         int
	ChunksMissingVector int
}
