package models

import (
	"strings"
	"time"
)

const (
	DocumentPersonalStatement = "PERSONAL_STATEMENT"
	DocumentCV                = "CV"
	DocumentLOR               = "LOR"
	DocumentMSPE              = "MSPE"
	DocumentOther             = "OTHER"
)

// Document is a piece of the application submitted for review.
type Document struct {
	ID            int64     `json:"id" db:"id"`
	ApplicationID int64     `json:"applicationId" db:"application_id"`
	Kind          string    `json:"kind" db:"kind"`
	Title         string    `json:"title" db:"title"`
	Content       *string   `json:"content,omitempty" db:"content"`
	FileURL       *string   `json:"fileUrl,omitempty" db:"file_url"`
	WordCount     int       `json:"wordCount" db:"word_count"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
