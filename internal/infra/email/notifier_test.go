package email

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotifyFailure(t *testing.T) {
	n := NewSMTPNotifier("mail.local", 1025, "noreply@signdata.local", zap.NewNop())

	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	n.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		return nil
	}

	require.NoError(t, n.NotifyFailure(context.Background(), "ana@example.com", "job-1", "xin chào", "no keypoints extracted"))
	assert.Equal(t, "mail.local:1025", gotAddr)
	assert.Equal(t, []string{"ana@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Sign recording could not be processed [Job job-1]")
	assert.Contains(t, string(gotMsg), `"xin chào"`)
	assert.Contains(t, string(gotMsg), "Error: no keypoints extracted")
}

func TestNotifyFailure_SendError(t *testing.T) {
	n := NewSMTPNotifier("mail.local", 1025, "noreply@signdata.local", zap.NewNop())
	n.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }

	err := n.NotifyFailure(context.Background(), "a@b.c", "job-1", "ola", "boom")
	assert.ErrorContains(t, err, "send email: refused")
}
