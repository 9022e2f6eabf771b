package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/footprint-labs/footprint-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCompletion() Completion {
	return Completion{
		Recipient:     "owner@example.org",
		ExportName:    "Bern city centre",
		RunID:         "run-42",
		Status:        domain.RunStateCompleted,
		BuildingCount: 1234,
		DownloadURL:   "https://files.example.org/run-42.zip",
		FinishedAt:    time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC),
	}
}

func TestNotifyCompleted_RendersAndSends(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string

	n := NewSMTPNotifier(Config{Host: "smtp.example.org", Port: 587, From: "exports@example.org"}, nil)
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	require.NoError(t, n.NotifyCompleted(context.Background(), testCompletion()))
	assert.Equal(t, "smtp.example.org:587", gotAddr)
	assert.Equal(t, "exports@example.org", gotFrom)
	assert.Equal(t, []string{"owner@example.org"}, gotTo)
	assert.Contains(t, gotMsg, `Export "Bern city centre" completed`)
	assert.Contains(t, gotMsg, "Buildings: 1234")
	assert.Contains(t, gotMsg, "https://files.example.org/run-42.zip")
}

func TestNotifyCompleted_NoRelayConfigured(t *testing.T) {
	n := NewSMTPNotifier(Config{}, nil)
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called without a relay")
		return nil
	}
	assert.NoError(t, n.NotifyCompleted(context.Background(), testCompletion()))
}

func TestNotifyCompleted_SendFailure(t *testing.T) {
	n := NewSMTPNotifier(Config{Host: "smtp.example.org"}, nil)
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("relay refused")
	}
	err := n.NotifyCompleted(context.Background(), testCompletion())
	assert.ErrorContains(t, err, "relay refused")
}

func TestNotifyCompleted_OmitsEmptyDownloadURL(t *testing.T) {
	var gotMsg string
	n := NewSMTPNotifier(Config{Host: "smtp.example.org"}, nil)
	n.send = func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		gotMsg = string(msg)
		return nil
	}

	c := testCompletion()
	c.DownloadURL = ""
	c.Status = domain.RunStateFailed
	require.NoError(t, n.NotifyCompleted(context.Background(), c))
	assert.NotContains(t, gotMsg, "Download:")
	assert.Contains(t, gotMsg, "failed")
}
