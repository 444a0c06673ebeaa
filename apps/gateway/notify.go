package main

import (
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/victorpuello/kampus-sub004/core"
	"github.com/victorpuello/kampus-sub004/core/live"
)

// alertNotifier emails the configured recipients once per alert appearance:
// an alert code already present on the previous snapshot does not fire again.
type alertNotifier struct {
	mail       core.EmailService
	recipients []mail.Address

	mu   sync.Mutex
	prev *live.Snapshot
}

func newAlertNotifier(conf *core.Config, mailSvc core.EmailService) *alertNotifier {
	recipients := make([]mail.Address, 0, len(conf.Monitor.AlertRecipients))
	for _, addr := range conf.Monitor.AlertRecipients {
		recipients = append(recipients, mail.Address{Address: addr})
	}
	return &alertNotifier{mail: mailSvc, recipients: recipients}
}

func (n *alertNotifier) Notify(snap *live.Snapshot) {
	n.mu.Lock()
	prev := n.prev
	n.prev = snap
	n.mu.Unlock()

	fresh := live.NewAlerts(prev, snap)
	if len(fresh) == 0 || len(n.recipients) == 0 {
		return
	}

	body := new(strings.Builder)
	fmt.Fprintf(body, "New alerts on the live election dashboard (%s):\n\n", snap.GeneratedAt.Format("2006-01-02 15:04 MST"))
	for _, a := range fresh {
		fmt.Fprintf(body, "- [%s] %s: %s\n", strings.ToUpper(a.Severity), a.Code, a.Message)
	}

	n.mail.SendMessages(&core.EmailMessage{
		To:          n.recipients,
		Subject:     fmt.Sprintf("Live dashboard: %d new alert(s)", len(fresh)),
		TextContent: body.String(),
	})
}
