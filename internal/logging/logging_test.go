package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewParsesLevelAndFormat(t *testing.T) {
	logger := New("debug", "json")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	_, isJSON := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}

func TestNewFallsBackToInfo(t *testing.T) {
	logger := New("loud", "text")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	_, isText := logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, isText)
}
