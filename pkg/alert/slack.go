/*
Package alert implements the breaker-open paging path: a worker.BreakerAlerter
backed by a Slack channel post. Grounded on the teacher's pkg/service/slack.go,
which talks to the Slack API with a bot token via slack-go/slack; this
package reuses that client for one outbound notification instead of the
teacher's full socketmode event loop, since paging on breaker-open needs
no inbound Slack events at all.
*/
package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/slack-go/slack"
)

// SlackAlerter posts one message per closed->open breaker transition to a
// fixed channel. It satisfies worker.BreakerAlerter without importing the
// worker package, keeping the dependency direction pointed one way.
type SlackAlerter struct {
	client   *slack.Client
	channel  string
	cooldown time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewSlackAlerter(botToken, channel string) *SlackAlerter {
	return &SlackAlerter{
		client:   slack.New(botToken),
		channel:  channel,
		cooldown: time.Minute,
		lastSent: make(map[string]time.Time),
	}
}

// AlertBreakerOpen posts a warning to the configured channel, deduplicated
// per agent within the alerter's cooldown so a flapping breaker doesn't
// spam the channel once per admission rejection.
func (a *SlackAlerter) AlertBreakerOpen(agentID string) {
	now := time.Now()

	a.mu.Lock()
	if last, ok := a.lastSent[agentID]; ok && now.Sub(last) < a.cooldown {
		a.mu.Unlock()
		return
	}
	a.lastSent[agentID] = now
	a.mu.Unlock()

	text := fmt.Sprintf(":rotating_light: circuit breaker opened for agent `%s`", agentID)
	if _, _, err := a.client.PostMessage(a.channel, slack.MsgOptionText(text, false)); err != nil {
		log.Error("slack alert failed", "agent_id", agentID, "error", err)
	}
}
