// Package outreach decides when the assistant should check in with a user
// who has not written recently. Decisions are pure functions of stored state;
// the Sweeper applies them to every known user and queues the results in an
// Inbox.
package outreach

import (
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/counsel/episode"
	"github.com/aschepis/backscratcher/counsel/relationship"
)

// Trigger names the reason for an outreach message.
type Trigger string

const (
	TriggerCrisisFollowUp   Trigger = "crisis_follow_up"
	TriggerSentimentDecline Trigger = "sentiment_decline"
	TriggerAbsence          Trigger = "absence"
	TriggerFollowUp         Trigger = "follow_up"
	TriggerMilestone        Trigger = "milestone"
)

// Priority of each trigger. Higher wins.
var priorities = map[Trigger]int{
	TriggerCrisisFollowUp:   10,
	TriggerSentimentDecline: 9,
	TriggerAbsence:          8,
	TriggerFollowUp:         5,
	TriggerMilestone:        3,
}

// Priority returns the priority of t, or 0 for an unknown trigger.
func (t Trigger) Priority() int { return priorities[t] }

const (
	crisisWindowEpisodes  = 3
	crisisSignificance    = 0.9
	crisisMinDays         = 1
	crisisMaxDays         = 3
	declineShare          = 0.6
	declineMinSamples     = 3
	milestoneToleranceDay = 1
)

var (
	milestoneDays         = []int{30, 100, 365}
	milestoneInteractions = []int{10, 50, 100, 500, 1000}
)

// Message is a queued check-in for one user.
type Message struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Trigger   Trigger            `json:"trigger"`
	Priority  int                `json:"priority"`
	Text      string             `json:"text"`
	Phase     relationship.Phase `json:"phase"`
	CreatedAt time.Time          `json:"created_at"`
}

// Config controls the outreach sweep.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression, a descriptor such as "@every 1h", or a
	// Go duration.
	Schedule     string        `yaml:"schedule" validate:"required"`
	AbsenceDays  int           `yaml:"absence_days" validate:"gte=1"`
	FollowUpDays int           `yaml:"follow_up_days" validate:"gte=1"`
	Cooldown     time.Duration `yaml:"cooldown" validate:"gte=0"`
	InboxSize    int           `yaml:"inbox_size" validate:"gte=1"`
	Concurrency  int           `yaml:"concurrency" validate:"gte=1"`
}

// DefaultConfig returns outreach settings with the sweep disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		Schedule:     "@every 1h",
		AbsenceDays:  7,
		FollowUpDays: 3,
		Cooldown:     24 * time.Hour,
		InboxSize:    1000,
		Concurrency:  4,
	}
}

// Decide returns the highest-priority check-in warranted for state at now.
// Episodes may be in any order. ok is false when nothing applies.
func Decide(state relationship.UserState, episodes []episode.Episode, now time.Time, cfg Config) (msg Message, ok bool) {
	if state.UserID == "" || state.IsNew() {
		return Message{}, false
	}

	recent := append([]episode.Episode(nil), episodes...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})

	candidates := []Message{}
	add := func(t Trigger, text string) {
		if text == "" {
			return
		}
		candidates = append(candidates, Message{
			UserID:    state.UserID,
			Trigger:   t,
			Priority:  t.Priority(),
			Text:      text,
			Phase:     state.Phase,
			CreatedAt: now,
		})
	}

	if crisisFollowUpDue(recent, now) {
		add(TriggerCrisisFollowUp, pick(crisisTemplates(state.Phase), state.UserID))
	}
	if sentimentDeclining(state) {
		add(TriggerSentimentDecline, pick(declineTemplates[state.Phase], state.UserID))
	}
	if daysBetween(state.LastInteractionAt, now) >= cfg.AbsenceDays {
		add(TriggerAbsence, pick(absenceTemplates[state.Phase], state.UserID))
	}
	if len(recent) > 0 {
		last := recent[0]
		if daysBetween(last.CreatedAt, now) >= cfg.FollowUpDays && !state.LastInteractionAt.After(last.CreatedAt) {
			add(TriggerFollowUp, followUpText(state.Phase, last.Topic))
		}
	}
	if text, hit := milestoneText(state, now); hit {
		add(TriggerMilestone, text)
	}

	if len(candidates) == 0 {
		return Message{}, false
	}
	best := lo.MaxBy(candidates, func(a, b Message) bool { return a.Priority > b.Priority })
	return best, true
}

func crisisFollowUpDue(recent []episode.Episode, now time.Time) bool {
	window := recent[:min(len(recent), crisisWindowEpisodes)]
	return lo.ContainsBy(window, func(ep episode.Episode) bool {
		if ep.Kind != episode.KindCrisis && ep.Significance < crisisSignificance {
			return false
		}
		d := daysBetween(ep.CreatedAt, now)
		return d >= crisisMinDays && d <= crisisMaxDays
	})
}

func sentimentDeclining(state relationship.UserState) bool {
	var negative, total int
	for e, n := range state.EmotionCounts {
		total += n
		if e.Negative() {
			negative += n
		}
	}
	if total < declineMinSamples {
		return false
	}
	return float64(negative)/float64(total) > declineShare
}

func milestoneText(state relationship.UserState, now time.Time) (string, bool) {
	since := daysBetween(state.CreatedAt, now)
	for _, target := range milestoneDays {
		if abs(since-target) <= milestoneToleranceDay {
			if text := dayMilestoneTemplates[state.Phase][target]; text != "" {
				return text, true
			}
		}
	}
	if lo.Contains(milestoneInteractions, state.InteractionCount) {
		return countMilestoneText(state.Phase, state.InteractionCount), true
	}
	return "", false
}

// daysBetween returns whole days elapsed from then to now, floored.
func daysBetween(then, now time.Time) int {
	if then.IsZero() {
		return 0
	}
	return int(math.Floor(now.Sub(then).Hours() / 24))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
