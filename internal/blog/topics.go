package blog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed topics.yaml
var defaultTopics []byte

// Topic is one entry of the generation catalogue.
type Topic struct {
	Title    string   `yaml:"title"`
	Keywords []string `yaml:"keywords"`
	Audience string   `yaml:"audience"`
}

type catalogue struct {
	Topics []Topic `yaml:"topics"`
}

// LoadTopics reads the catalogue at path, or the built-in one when path is empty.
func LoadTopics(path string) ([]Topic, error) {
	data := defaultTopics
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read topics file: %w", err)
		}
		data = b
	}
	return ParseTopics(data)
}

// ParseTopics decodes a YAML catalogue, dropping entries without a title.
func ParseTopics(data []byte) ([]Topic, error) {
	var c catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	topics := make([]Topic, 0, len(c.Topics))
	for _, t := range c.Topics {
		t.Title = strings.TrimSpace(t.Title)
		if t.Title == "" {
			continue
		}
		topics = append(topics, t)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("parse topics: catalogue is empty")
	}
	return topics, nil
}

// PickTopic returns the least recently used topic. Topics never used win,
// in catalogue order. lastUsed is keyed by topic title.
func PickTopic(topics []Topic, lastUsed map[string]time.Time) (Topic, bool) {
	if len(topics) == 0 {
		return Topic{}, false
	}
	best := -1
	var bestAt time.Time
	for i, t := range topics {
		at, used := lastUsed[t.Title]
		if !used {
			return t, true
		}
		if best == -1 || at.Before(bestAt) {
			best, bestAt = i, at
		}
	}
	return topics[best], true
}
