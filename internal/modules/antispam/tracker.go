package antispam

import (
	"strings"
	"sync"
	"time"

	"guildkeeper/internal/config"
	"guildkeeper/internal/utils"
)

type Tier string

const (
	TierNone       Tier = ""
	TierSuspicious Tier = "suspicious_pattern"
	TierCrypto     Tier = "crypto_scam"
	TierDuplicate  Tier = "duplicate_spam"
	TierRapid      Tier = "rapid_spam"
)

const (
	cryptoTimeout     = 24 * time.Hour
	suspiciousTimeout = 5 * time.Minute
	duplicateStep     = 5 * time.Minute
	duplicateCap      = 60 * time.Minute
	rapidStep         = 3 * time.Minute
	rapidCap          = 30 * time.Minute
	cryptoAttachments = 2
)

type Settings struct {
	MessageLimit   int
	DuplicateLimit int
	TimeWindow     time.Duration
	Cooldown       time.Duration
}

func SettingsFromConfig(cfg config.AntiSpamConfig) Settings {
	return Settings{
		MessageLimit:   cfg.MessageLimit,
		DuplicateLimit: cfg.DuplicateLimit,
		TimeWindow:     time.Duration(cfg.TimeWindowMS) * time.Millisecond,
		Cooldown:       time.Duration(cfg.WarningCooldownMS) * time.Millisecond,
	}
}

// Message is the subset of a chat message the classifier looks at.
type Message struct {
	GuildID         string
	ChannelID       string
	MessageID       string
	AuthorID        string
	AuthorName      string
	Content         string
	Attachments     []string
	MentionEveryone bool
	At              time.Time
	AccountCreated  time.Time

	// Allowlist and Blocklist hold the guild's domain lists, when loaded.
	Allowlist map[string]struct{}
	Blocklist map[string]struct{}
}

// Verdict is the outcome of classifying one message. Enforce is false when a
// duplicate or rapid detection fell inside the warning cooldown.
type Verdict struct {
	Tier     Tier
	Reason   string
	Count    int
	Enforce  bool
	Timeout  time.Duration
	Warnings int
}

func (v Verdict) IsSpam() bool { return v.Tier != TierNone }

type trackerKey struct {
	guildID string
	userID  string
}

type tracker struct {
	mu          sync.Mutex
	window      *utils.SlidingWindow[string]
	warnings    int
	lastWarning time.Time
}

// TrackerStore holds one tracker per (guild, user).
type TrackerStore struct {
	mu       sync.Mutex
	settings Settings
	trackers map[trackerKey]*tracker
}

func NewTrackerStore(settings Settings) *TrackerStore {
	return &TrackerStore{
		settings: settings,
		trackers: make(map[trackerKey]*tracker),
	}
}

func (s *TrackerStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trackers)
}

// Stats reports the window size and warning count for a user at now.
func (s *TrackerStore) Stats(guildID, userID string, now time.Time) (messages, warnings int, ok bool) {
	s.mu.Lock()
	t := s.trackers[trackerKey{guildID, userID}]
	s.mu.Unlock()
	if t == nil {
		return 0, 0, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window.Count(now), t.warnings, true
}

// lock returns the tracker for a user with its mutex held. The tracker lock
// is taken before the store lock is released, so Sweep cannot drop a tracker
// between lookup and use.
func (s *TrackerStore) lock(guildID, userID string) *tracker {
	key := trackerKey{guildID, userID}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trackers[key]
	if t == nil {
		t = &tracker{window: utils.NewSlidingWindow[string](s.settings.TimeWindow)}
		s.trackers[key] = t
	}
	t.mu.Lock()
	return t
}

// Classify decides whether msg is spam. Bypassed senders never create or
// touch a tracker. For duplicate and rapid spam the warning counter and the
// cooldown are updated under the tracker lock, so concurrent messages from
// one user cannot both enforce. The window keeps filling after enforcement:
// later messages of the same burst stay spam and are deleted, while the
// cooldown holds back a second timeout.
func (s *TrackerStore) Classify(msg Message, bypass bool) Verdict {
	if bypass {
		return Verdict{}
	}
	if msg.MentionEveryone && len(msg.Attachments) >= cryptoAttachments {
		return Verdict{Tier: TierCrypto, Count: len(msg.Attachments), Enforce: true, Timeout: cryptoTimeout}
	}
	if strings.TrimSpace(msg.Content) == "" {
		return Verdict{}
	}
	if reason := suspiciousReason(msg.Content); reason != "" {
		return Verdict{Tier: TierSuspicious, Reason: reason, Enforce: true, Timeout: suspiciousTimeout}
	}
	if _, domain, blocked := utils.FirstBlockedURL(msg.Content, msg.Allowlist, msg.Blocklist); blocked {
		return Verdict{Tier: TierSuspicious, Reason: "blocked_domain:" + domain, Enforce: true, Timeout: suspiciousTimeout}
	}

	t := s.lock(msg.GuildID, msg.AuthorID)
	defer t.mu.Unlock()

	entries := t.window.Add(msg.At, msg.Content)
	duplicates := 0
	for _, entry := range entries {
		if entry.Value == msg.Content {
			duplicates++
		}
	}

	var verdict Verdict
	switch {
	case duplicates >= s.settings.DuplicateLimit:
		verdict = Verdict{Tier: TierDuplicate, Count: duplicates}
	case len(entries) >= s.settings.MessageLimit:
		verdict = Verdict{Tier: TierRapid, Count: len(entries)}
	default:
		return Verdict{}
	}

	if !t.lastWarning.IsZero() && msg.At.Sub(t.lastWarning) <= s.settings.Cooldown {
		verdict.Warnings = t.warnings
		return verdict
	}
	t.warnings++
	t.lastWarning = msg.At

	verdict.Enforce = true
	verdict.Warnings = t.warnings
	if verdict.Tier == TierDuplicate {
		verdict.Timeout = escalate(t.warnings, duplicateStep, duplicateCap)
	} else {
		verdict.Timeout = escalate(t.warnings, rapidStep, rapidCap)
	}
	return verdict
}

// Sweep prunes every window and drops trackers that are empty and whose last
// warning is older than twice the cooldown. It performs no I/O.
func (s *TrackerStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, t := range s.trackers {
		t.mu.Lock()
		idle := t.window.Count(now) == 0 && now.Sub(t.lastWarning) > 2*s.settings.Cooldown
		t.mu.Unlock()
		if idle {
			delete(s.trackers, key)
			removed++
		}
	}
	return removed
}

func escalate(warnings int, step, ceiling time.Duration) time.Duration {
	d := time.Duration(warnings) * step
	if d > ceiling {
		return ceiling
	}
	return d
}
