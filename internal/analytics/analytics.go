package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"guildkeeper/internal/modules/audit"
	"guildkeeper/internal/storage"
	"guildkeeper/internal/ui"

	"github.com/bwmarrin/discordgo"
)

const topEvents = 10

type Source interface {
	ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]storage.AuditLog, error)
}

type Service struct {
	source Source
}

func New(source Source) *Service {
	return &Service{source: source}
}

type Report struct {
	Since   time.Time
	Total   int
	ByLevel map[string]int
	ByEvent map[string]int
}

func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	logs, err := s.source.ListAuditLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{Since: since, ByLevel: make(map[string]int), ByEvent: make(map[string]int)}
	for _, log := range logs {
		report.Total++
		report.ByLevel[log.Level]++
		report.ByEvent[log.Event]++
	}
	return report, nil
}

type count struct {
	name string
	n    int
}

// TopEvents returns up to limit events, most frequent first.
func (r Report) TopEvents(limit int) []string {
	counts := make([]count, 0, len(r.ByEvent))
	for name, n := range r.ByEvent {
		counts = append(counts, count{name, n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].n != counts[j].n {
			return counts[i].n > counts[j].n
		}
		return counts[i].name < counts[j].name
	})
	if len(counts) > limit {
		counts = counts[:limit]
	}
	out := make([]string, 0, len(counts))
	for _, c := range counts {
		out = append(out, fmt.Sprintf("`%s` %d", c.name, c.n))
	}
	return out
}

func (r Report) Embed(color int) *discordgo.MessageEmbed {
	levels := make([]string, 0, 4)
	for _, level := range []string{audit.LevelCrit, audit.LevelError, audit.LevelWarn, audit.LevelInfo} {
		levels = append(levels, fmt.Sprintf("%s: %d", level, r.ByLevel[level]))
	}
	events := strings.Join(r.TopEvents(topEvents), "\n")
	if events == "" {
		events = "No activity"
	}
	return ui.Card{
		Title:       "📊 Activity Report",
		Description: fmt.Sprintf("Since %s\nTotal entries: **%d**", ui.Timestamp(r.Since, "f"), r.Total),
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			ui.Field("By Level", strings.Join(levels, "\n"), true),
			ui.Field("Top Events", events, true),
		},
	}.Embed()
}
