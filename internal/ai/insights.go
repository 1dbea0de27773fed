package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

const sqlToolName = "run_readonly_sql"

// maxToolRounds bounds the function-calling loop.
const maxToolRounds = 6

var (
	ErrInsightsDisabled = errors.New("ai: insights need a read-only database")
	ErrUnsafeQuery      = errors.New("security violation: only single SELECT statements are allowed")

	writeKeywords = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|replace|grant|revoke|rename|call|load|handler|lock|set|into|outfile|dumpfile)\b`)
	// Credentials and verification secrets never leave the database.
	secretColumns = regexp.MustCompile(`(?i)\b(password_hash|verification_code|stripe_customer_id)\b`)
)

// Ask answers an admin's question about the business, letting the model run
// read-only SQL against the reporting pool. It returns the answer and the
// tokens spent across the whole exchange.
func (s *AIService) Ask(ctx context.Context, question string) (string, int, error) {
	if s.DB == nil {
		return "", 0, ErrInsightsDisabled
	}

	model := s.Client.GenerativeModel(s.ModelName)
	model.Tools = []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        sqlToolName,
			Description: "Executes a READ-ONLY MySQL SELECT query and returns rows as JSON.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {
						Type:        genai.TypeString,
						Description: "The MySQL SELECT query to execute.",
					},
				},
				Required: []string{"query"},
			},
		}},
	}}
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(fmt.Sprintf(`
			You are the ERAS Review back-office analyst. You answer questions from administrators.
			Access: MySQL database (%s).
			Schema: %s
			Rules: SELECT only. Money columns are integer cents. Be concise and show the numbers you used.
		`, sqlToolName, schemaDefinition))},
	}

	cs := model.StartChat()
	res, err := cs.SendMessage(ctx, genai.Text(question))
	if err != nil {
		return "", 0, fmt.Errorf("error sending message: %w", err)
	}
	totalTokens := tokensOf(res)

	for round := 0; round < maxToolRounds; round++ {
		if len(res.Candidates) == 0 || res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
			return "", totalTokens, ErrEmptyResponse
		}

		funcCall, ok := res.Candidates[0].Content.Parts[0].(genai.FunctionCall)
		if !ok {
			return textOf(res), totalTokens, nil
		}
		if funcCall.Name != sqlToolName {
			return "", totalTokens, fmt.Errorf("unknown function: %s", funcCall.Name)
		}

		query, _ := funcCall.Args["query"].(string)
		s.Log.WithField("query", query).Info("insights assistant running SQL")

		result, sqlErr := s.RunReadOnlyQuery(ctx, query)
		if sqlErr != nil {
			result = fmt.Sprintf("SQL Error: %v", sqlErr)
			s.Log.WithError(sqlErr).Warn("insights query rejected or failed")
		}

		res, err = cs.SendMessage(ctx, genai.FunctionResponse{
			Name:     sqlToolName,
			Response: map[string]any{"result": result},
		})
		if err != nil {
			return "", totalTokens, fmt.Errorf("tool response error: %w", err)
		}
		// UsageMetadata is cumulative for the chat, so take the latest total.
		if t := tokensOf(res); t > totalTokens {
			totalTokens = t
		}
	}
	return "", totalTokens, fmt.Errorf("insights: gave up after %d tool calls", maxToolRounds)
}

// ValidateReadOnly rejects anything other than a single SELECT that names
// its columns and stays away from secret ones.
func ValidateReadOnly(query string) error {
	q := strings.TrimSpace(query)
	q = strings.TrimSuffix(q, ";")
	if q == "" || strings.Contains(q, ";") {
		return ErrUnsafeQuery
	}
	upper := strings.ToUpper(q)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return ErrUnsafeQuery
	}
	if writeKeywords.MatchString(q) || secretColumns.MatchString(q) || selectsStar(q) ||
		strings.Contains(q, "*/") {
		return ErrUnsafeQuery
	}
	return nil
}

// selectsStar reports whether q projects * or t.* instead of naming columns,
// which would pull secret columns without mentioning them. COUNT(*) and
// multiplication are fine.
func selectsStar(q string) bool {
	for i := 0; i < len(q); i++ {
		if q[i] != '*' {
			continue
		}
		if strings.HasSuffix(strings.TrimRight(q[:i], " \t\r\n"), "(") {
			continue
		}
		next := strings.ToLower(strings.TrimLeft(q[i+1:], " \t\r\n"))
		if next == "" || next[0] == ',' {
			return true
		}
		if strings.HasPrefix(next, "from") && (len(next) == 4 || !isIdentByte(next[4])) {
			return true
		}
	}
	return false
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// RunReadOnlyQuery executes a validated query and encodes the rows as JSON.
func (s *AIService) RunReadOnlyQuery(ctx context.Context, query string) (string, error) {
	if err := ValidateReadOnly(query); err != nil {
		return "", err
	}
	rows, err := s.DB.QueryxContext(ctx, strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if err != nil {
		return "", err
	}
	defer rows.Close()

	tableData := []map[string]any{}
	for rows.Next() {
		entry := map[string]any{}
		if err := rows.MapScan(entry); err != nil {
			return "", err
		}
		for col, val := range entry {
			if secretColumns.MatchString(col) {
				delete(entry, col)
				continue
			}
			if b, ok := val.([]byte); ok {
				entry[col] = string(b)
			}
		}
		tableData = append(tableData, entry)
		if len(tableData) >= 200 {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	jsonData, err := json.Marshal(tableData)
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

const schemaDefinition = `
	- users (id, role [applicant, admin], status [unverified, active, suspended], email, full_name, medical_school, graduation_year, specialty, created_at)
	- applications (id, user_id, title, specialty, cycle_year, status [DRAFT, IN_REVIEW, SUBMITTED, REVIEWED, COMPLETED], service_tier, submitted_at, reviewed_at, completed_at, created_at)
	- documents (id, application_id, kind [PERSONAL_STATEMENT, CV, LOR, MSPE, OTHER], title, word_count, created_at)
	- experiences (id, application_id, kind, organization, position, start_date, end_date, hours_per_week, is_most_meaningful)
	- reviews (id, application_id, reviewer_id, document_id, summary, score, status [DRAFT, PUBLISHED], created_at)
	- plans (id, code, name, price_cents, currency, billing_interval [one_time, month], review_credits, is_public)
	- payments (id, user_id, plan_id, amount_cents, currency, status [PENDING, SUCCEEDED, FAILED, EXPIRED, REFUNDED], description, created_at)
	- subscriptions (id, user_id, plan_id, status [ACTIVE, TRIALING, PAST_DUE, CANCELED, INCOMPLETE, UNPAID], current_period_end, cancel_at_period_end, created_at)
	- blog_posts (id, slug, title, status [DRAFT, PUBLISHED], ai_generated, topic, reading_minutes, published_at)
	- interview_requests (id, user_id, name, email, specialty, status [PENDING, SCHEDULED, COMPLETED, CANCELLED], scheduled_at, created_at)
	`
