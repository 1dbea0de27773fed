package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

var ErrEmptyResponse = errors.New("ai: empty response")

// AIService holds the Gemini client and the read-only database connection.
type AIService struct {
	Client    *genai.Client
	DB        *sqlx.DB // read-only pool, nil when insights are disabled
	ModelName string
	Log       logrus.FieldLogger
}

// NewAIService initializes the Gemini client.
func NewAIService(ctx context.Context, apiKey, modelName string, dbReadOnly *sqlx.DB, log logrus.FieldLogger) (*AIService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &AIService{Client: client, DB: dbReadOnly, ModelName: modelName, Log: log}, nil
}

func (s *AIService) Close() error {
	return s.Client.Close()
}

// textOf joins the text parts of the first candidate.
func textOf(res *genai.GenerateContentResponse) string {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

func tokensOf(res *genai.GenerateContentResponse) int {
	if res == nil || res.UsageMetadata == nil {
		return 0
	}
	return int(res.UsageMetadata.TotalTokenCount)
}
