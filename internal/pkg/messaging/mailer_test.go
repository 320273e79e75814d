package messaging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("noreply@dojopulse.app", "owner@example.com", "Low credit warning", "<p>Running low.</p>"))

	assert.True(t, strings.HasPrefix(msg, "From: noreply@dojopulse.app\r\n"))
	assert.Contains(t, msg, "To: owner@example.com\r\n")
	assert.Contains(t, msg, "Subject: Low credit warning\r\n")
	assert.Contains(t, msg, "Content-Type: text/html; charset=UTF-8\r\n")

	// Headers and body are separated by exactly one blank line.
	parts := strings.SplitN(msg, "\r\n\r\n", 2)
	assert.Len(t, parts, 2)
	assert.Equal(t, "<p>Running low.</p>", parts[1])
}

func TestSMTPMailerRejectsEmptyRecipient(t *testing.T) {
	err := NewSMTPMailer().SendEmail(context.Background(), "", "subject", "body")

	var sendErr *SendError
	assert.ErrorAs(t, err, &sendErr)
	assert.False(t, sendErr.Retryable)
}
