package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mineguard/cheatercheck/pkg/check"
)

// Embed colors in Discord's integer format.
const (
	colorInfo   = 0x3498db
	colorClean  = 0x2ecc71
	colorBanned = 0xe74c3c
)

// Reporter turns check outcomes into Discord embeds. Deliveries run off
// the gameplay loop; failures are logged, never surfaced to the flow that
// triggered them.
type Reporter struct {
	client *Client
	logger *logrus.Logger
}

func NewReporter(client *Client, logger *logrus.Logger) *Reporter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reporter{client: client, logger: logger}
}

func (r *Reporter) CheckStarted(staff, target string) {
	r.deliver(Embed{
		Title:       "Check started",
		Description: fmt.Sprintf("**%s** is being checked by **%s**", target, staff),
		Color:       colorInfo,
	})
}

func (r *Reporter) CheckEnded(staff, target string, verdict check.Verdict, cheat string) {
	e := Embed{Title: "Check ended", Color: colorClean}
	switch verdict {
	case check.VerdictClean:
		e.Description = fmt.Sprintf("**%s** was found clean", target)
	case check.VerdictCheat:
		e.Description = fmt.Sprintf("**%s** was banned for **%s** by **%s**", target, cheat, staff)
		e.Color = colorBanned
	case check.VerdictTimeout:
		e.Description = fmt.Sprintf("**%s** failed to respond and was banned", target)
		e.Color = colorBanned
	default:
		e.Description = fmt.Sprintf("check on **%s** ended (%s)", target, verdict)
	}
	r.deliver(e)
}

func (r *Reporter) CheckQuit(target string, banned bool) {
	e := Embed{
		Title:       "Target logged out",
		Description: fmt.Sprintf("**%s** logged out during a check", target),
		Color:       colorBanned,
	}
	if banned {
		e.Description += " and was banned"
	}
	r.deliver(e)
}

func (r *Reporter) deliver(e Embed) {
	e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.client.Send(ctx, Message{Username: "CheaterCheck", Embeds: []Embed{e}}); err != nil {
			r.logger.WithError(err).Error("discord report delivery failed")
		}
	}()
}
