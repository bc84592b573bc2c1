package antispam

import (
	"regexp"
	"strings"
)

type pattern struct {
	id string
	re *regexp.Regexp
}

// Checked in order; the first match names the verdict.
var suspiciousPatterns = []pattern{
	{"fake_nitro", regexp.MustCompile(`(?i)discord\.(?:gg|com)/(?:gift|nitro)/[a-zA-Z0-9]+`)},
	{"fake_gift", regexp.MustCompile(`(?i)discord\.com/gift/[a-zA-Z0-9]+`)},
	{"obfuscated_domain", regexp.MustCompile(`(?i)disc(?:o|0)rd(?:app)?\.(?:gg|com)/(?:gift|nitro|invite)/[a-zA-Z0-9]+`)},
	{"nitro_scam_text", regexp.MustCompile(`(?i)\bfree\s+(?:discord\s+)?nitro\b`)},
	{"claim_scam_text", regexp.MustCompile(`(?i)\bclaim\s+(?:your\s+)?(?:nitro|discord)\b`)},
	{"steam_phishing", regexp.MustCompile(`(?i)\b(?:steamcommunity|steampowered|steam-\w+)\.[a-z]+/\S+`)},
	{"mass_mention_scam", regexp.MustCompile(`(?i)@everyone.*\b(?:nitro|free|gift|giveaway)\b`)},
	{"crypto_scam_text", regexp.MustCompile(`(?i)\b(?:airdrop|nft|crypto|bitcoin|eth|token).*\b(?:claim|free|win)\b`)},
}

var zeroWidth = regexp.MustCompile("[\u200B-\u200F\u2060-\u2064]")

const (
	zeroWidthLimit = 10
	pipeRun        = 20
)

// suspiciousReason checks the character-flood heuristics before the pattern
// list, so a flood that also carries scam text reports the flood.
func suspiciousReason(content string) string {
	if len(zeroWidth.FindAllStringIndex(content, zeroWidthLimit)) >= zeroWidthLimit {
		return "zero_width_flood"
	}
	if strings.Contains(content, strings.Repeat("|", pipeRun)) {
		return "pipe_flood"
	}
	for _, p := range suspiciousPatterns {
		if p.re.MatchString(content) {
			return p.id
		}
	}
	return ""
}
