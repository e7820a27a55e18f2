package domain

import (
	"fmt"
	"strings"
	"time"
)

// Course is the unit of content ownership below an organization.
type Course struct {
	ID        string
	OrgID     string
	Title     string
	CreatedBy string
	CreatedAt time.Time
}

// Module groups topics inside a course.
type Module struct {
	ID       string
	OrgID    string
	CourseID string
	Title    string
	Position int
}

// Topic is the leaf of the course hierarchy; materials attach here.
type Topic struct {
	ID       string
	OrgID    string
	CourseID string
	ModuleID string
	Title    string
	Position int
}

// ValidateCourse validates a Course instance
func ValidateCourse(c *Course) error {
	if c == nil {
		return fmt.Errorf("course cannot be nil")
	}
	if c.ID == "" {
		return fmt.Errorf("course ID is required")
	}
	if c.OrgID == "" {
		return fmt.Errorf("course OrgID is required")
	}
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("course Title is required")
	}
	if c.CreatedBy == "" {
		return fmt.Errorf("course CreatedBy is required")
	}
	return nil
}
