package models

import "time"

// AIInsight is one admin question answered by the insights assistant,
// stored in the 'ai_insight_history' table.
type AIInsight struct {
	ID         int64     `json:"id" db:"id"`
	UserID     int64     `json:"userId" db:"user_id"`
	Question   string    `json:"question" db:"question"`
	Answer     string    `json:"answer" db:"answer"`
	TokensUsed int       `json:"tokensUsed" db:"tokens_used"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}
