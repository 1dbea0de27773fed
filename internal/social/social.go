package social

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Post is the announcement of a newly published blog post.
type Post struct {
	Title   string
	URL     string
	Summary string
	Tags    []string
}

// Poster publishes an announcement to one social network.
type Poster interface {
	Name() string
	Publish(ctx context.Context, post Post) error
}

// LogPoster is the placeholder for a network we have no API credentials for.
// Instead of posting, we log the text that would have gone out.
type LogPoster struct {
	Network string
	MaxLen  int
	Log     logrus.FieldLogger
}

func (p LogPoster) Name() string { return p.Network }

func (p LogPoster) Publish(_ context.Context, post Post) error {
	if post.URL == "" {
		return fmt.Errorf("%s: post has no url", p.Network)
	}
	p.Log.WithFields(logrus.Fields{
		"network": p.Network,
		"url":     post.URL,
	}).Info("social placeholder: not posted: " + Compose(post, p.MaxLen))
	return nil
}

// DefaultPosters are the LinkedIn and X placeholders.
func DefaultPosters(log logrus.FieldLogger) []Poster {
	return []Poster{
		LogPoster{Network: "linkedin", MaxLen: 3000, Log: log},
		LogPoster{Network: "x", MaxLen: 280, Log: log},
	}
}

// Compose renders the post text, keeping the URL intact and trimming the
// summary so the whole message fits in maxLen runes (0 means no limit).
func Compose(post Post, maxLen int) string {
	var hashtags []string
	for _, t := range post.Tags {
		t = strings.Join(strings.Fields(t), "")
		if t != "" {
			hashtags = append(hashtags, "#"+t)
		}
	}

	head := post.Title
	if post.Summary != "" {
		head += "\n\n" + post.Summary
	}
	tail := "\n\n" + post.URL
	if len(hashtags) > 0 {
		tail += "\n" + strings.Join(hashtags, " ")
	}

	if maxLen > 0 {
		room := maxLen - len([]rune(tail))
		if r := []rune(head); len(r) > room {
			if room < 1 {
				head = ""
			} else {
				head = string(r[:room-1]) + "…"
			}
		}
	}
	return head + tail
}

// Share announces post on every poster. Failures are logged and returned
// per network; one failing network never stops the others.
func Share(ctx context.Context, posters []Poster, post Post, log logrus.FieldLogger) map[string]error {
	failed := map[string]error{}
	for _, p := range posters {
		if err := p.Publish(ctx, post); err != nil {
			log.WithError(err).WithField("network", p.Name()).Warn("social post failed")
			failed[p.Name()] = err
		}
	}
	return failed
}
