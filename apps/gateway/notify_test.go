package main

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorpuello/kampus-sub004/core"
	"github.com/victorpuello/kampus-sub004/core/live"
)

type fakeMailService struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (f *fakeMailService) SendMessages(messages ...*core.EmailMessage) {
	f.mu.Lock()
	f.sent = append(f.sent, messages...)
	f.mu.Unlock()
}

func (f *fakeMailService) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestAlertNotifier(t *testing.T) {
	mailSvc := &fakeMailService{}
	conf := &core.Config{Monitor: core.MonitorConfig{AlertRecipients: []string{"rector@kampus.edu.co"}}}
	notifier := newAlertNotifier(conf, mailSvc)

	gen := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	blankRate := live.Alert{Code: "BLANK_RATE", Severity: live.AlertSeverityCritical, Message: "blank vote rate above 20%"}
	inactivity := live.Alert{Code: "INACTIVITY", Severity: live.AlertSeverityWarning, Message: "no votes for 6 minutes"}

	notifier.Notify(&live.Snapshot{GeneratedAt: gen, Alerts: []live.Alert{blankRate}})
	require.Equal(t, 1, mailSvc.count())
	assert.Contains(t, mailSvc.sent[0].TextContent, "BLANK_RATE")
	assert.Equal(t, "rector@kampus.edu.co", mailSvc.sent[0].To[0].Address)

	// the same alert persisting does not fire again
	notifier.Notify(&live.Snapshot{GeneratedAt: gen.Add(time.Minute), Alerts: []live.Alert{blankRate}})
	assert.Equal(t, 1, mailSvc.count())

	// a newly appearing code does
	notifier.Notify(&live.Snapshot{GeneratedAt: gen.Add(2 * time.Minute), Alerts: []live.Alert{blankRate, inactivity}})
	require.Equal(t, 2, mailSvc.count())
	assert.Contains(t, mailSvc.sent[1].TextContent, "INACTIVITY")
	assert.NotContains(t, mailSvc.sent[1].TextContent, "BLANK_RATE")

	// an alert that clears and reappears fires again
	notifier.Notify(&live.Snapshot{GeneratedAt: gen.Add(3 * time.Minute)})
	notifier.Notify(&live.Snapshot{GeneratedAt: gen.Add(4 * time.Minute), Alerts: []live.Alert{blankRate}})
	assert.Equal(t, 3, mailSvc.count())
}

func TestAlertNotifierNoRecipients(t *testing.T) {
	mailSvc := &fakeMailService{}
	notifier := newAlertNotifier(&core.Config{}, mailSvc)

	notifier.Notify(&live.Snapshot{Alerts: []live.Alert{{Code: "SPIKE"}}})
	assert.Zero(t, mailSvc.count())
}
