// Package customid encodes and parses the custom ids attached to buttons,
// select menus and modals.
//
// Every id has the form prefix + payload. Parse maps the prefix to a Kind and
// decodes the payload into typed fields, so handlers never split strings.
package customid

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknown = errors.New("customid: unknown id")

type Kind int

const (
	KindUnknown Kind = iota
	KindSpamDownload
	KindSpamUntimeout
	KindSpamBan
	KindTicketOpen
	KindTicketModal
	KindTicketJoin
	KindTicketClaim
	KindTicketClose
	KindCloseAccept
	KindCloseDeny
	KindTicketReopen
	KindBoosterClaim
	KindTempVoice
	KindTempVoiceModal
	KindTempVoiceSelect
	KindRulesModal
	kindCount
)

var kindNames = [...]string{
	KindUnknown:         "unknown",
	KindSpamDownload:    "spam_download",
	KindSpamUntimeout:   "spam_untimeout",
	KindSpamBan:         "spam_ban",
	KindTicketOpen:      "ticket_open",
	KindTicketModal:     "ticket_modal",
	KindTicketJoin:      "ticket_join",
	KindTicketClaim:     "ticket_claim",
	KindTicketClose:     "ticket_close",
	KindCloseAccept:     "close_accept",
	KindCloseDeny:       "close_deny",
	KindTicketReopen:    "ticket_reopen",
	KindBoosterClaim:    "booster_claim",
	KindTempVoice:       "tempvoice",
	KindTempVoiceModal:  "tempvoice_modal",
	KindTempVoiceSelect: "tempvoice_select",
	KindRulesModal:      "rules_modal",
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds lists every routable kind.
func Kinds() []Kind {
	out := make([]Kind, 0, int(kindCount)-1)
	for k := KindUnknown + 1; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// ID is a decoded custom id. Only the fields relevant to Kind are set.
type ID struct {
	Kind      Kind
	UserID    string
	MessageID string
	ThreadID  string
	// Arg carries the ticket type or the temp voice action.
	Arg string
}

const (
	prefixSpamDownload    = "anti_spam_download:"
	prefixSpamUntimeout   = "anti_spam_untimeout:"
	prefixSpamBan         = "anti_spam_ban:"
	prefixTicketModal     = "ticket_modal_"
	prefixTicketJoin      = "btn_join_ticket:"
	prefixTicketClaim     = "ticket_claim:"
	prefixTicketClose     = "btn_close_"
	prefixTicketCloseAlt  = "ticket_close:"
	prefixCloseAccept     = "close_accept:"
	prefixCloseDeny       = "close_deny:"
	prefixTicketReopen    = "ticket_reopen:"
	prefixTicketOpen      = "ticket_"
	prefixBoosterClaim    = "booster_claim_"
	prefixTempVoiceModal  = "tempvoice_modal_"
	prefixTempVoiceSelect = "tempvoice_select_"
	prefixTempVoice       = "tempvoice_"
	prefixRulesModal      = "edit_rules:"
)

func SpamDownload(userID, messageID string) ID {
	return ID{Kind: KindSpamDownload, UserID: userID, MessageID: messageID}
}

func SpamUntimeout(userID string) ID { return ID{Kind: KindSpamUntimeout, UserID: userID} }

func SpamBan(userID string) ID { return ID{Kind: KindSpamBan, UserID: userID} }

func TicketOpen(ticketType string) ID { return ID{Kind: KindTicketOpen, Arg: ticketType} }

func TicketModal(ticketType string) ID { return ID{Kind: KindTicketModal, Arg: ticketType} }

func TicketJoin(threadID string) ID { return ID{Kind: KindTicketJoin, ThreadID: threadID} }

func TicketClaim(threadID string) ID { return ID{Kind: KindTicketClaim, ThreadID: threadID} }

func TicketClose(ownerID string) ID { return ID{Kind: KindTicketClose, UserID: ownerID} }

func CloseAccept(requesterID string) ID { return ID{Kind: KindCloseAccept, UserID: requesterID} }

func CloseDeny(requesterID string) ID { return ID{Kind: KindCloseDeny, UserID: requesterID} }

func TicketReopen(ownerID string) ID { return ID{Kind: KindTicketReopen, UserID: ownerID} }

func BoosterClaim(userID string) ID { return ID{Kind: KindBoosterClaim, UserID: userID} }

func TempVoice(action string) ID { return ID{Kind: KindTempVoice, Arg: action} }

func TempVoiceModal(action string) ID { return ID{Kind: KindTempVoiceModal, Arg: action} }

func TempVoiceSelect(action string) ID { return ID{Kind: KindTempVoiceSelect, Arg: action} }

// RulesModal edits the rules panel posted as messageID.
func RulesModal(messageID string) ID { return ID{Kind: KindRulesModal, MessageID: messageID} }

func (id ID) String() string {
	switch id.Kind {
	case KindSpamDownload:
		return prefixSpamDownload + id.UserID + ":" + id.MessageID
	case KindSpamUntimeout:
		return prefixSpamUntimeout + id.UserID
	case KindSpamBan:
		return prefixSpamBan + id.UserID
	case KindTicketOpen:
		return prefixTicketOpen + id.Arg
	case KindTicketModal:
		return prefixTicketModal + id.Arg
	case KindTicketJoin:
		return prefixTicketJoin + id.ThreadID
	case KindTicketClaim:
		return prefixTicketClaim + id.ThreadID
	case KindTicketClose:
		return prefixTicketClose + id.UserID
	case KindCloseAccept:
		return prefixCloseAccept + id.UserID
	case KindCloseDeny:
		return prefixCloseDeny + id.UserID
	case KindTicketReopen:
		return prefixTicketReopen + id.UserID
	case KindBoosterClaim:
		return prefixBoosterClaim + id.UserID
	case KindTempVoice:
		return prefixTempVoice + id.Arg
	case KindTempVoiceModal:
		return prefixTempVoiceModal + id.Arg
	case KindTempVoiceSelect:
		return prefixTempVoiceSelect + id.Arg
	case KindRulesModal:
		return prefixRulesModal + id.MessageID
	default:
		return ""
	}
}

// Parse decodes raw. Longer prefixes are tested before the shorter prefixes
// they extend, e.g. "ticket_modal_" before "ticket_".
func Parse(raw string) (ID, error) {
	switch {
	case strings.HasPrefix(raw, prefixSpamDownload):
		userID, messageID, ok := strings.Cut(strings.TrimPrefix(raw, prefixSpamDownload), ":")
		if !ok || userID == "" || messageID == "" {
			return ID{}, fmt.Errorf("%w: %q", ErrUnknown, raw)
		}
		return SpamDownload(userID, messageID), nil
	case strings.HasPrefix(raw, prefixSpamUntimeout):
		return single(raw, prefixSpamUntimeout, SpamUntimeout)
	case strings.HasPrefix(raw, prefixSpamBan):
		return single(raw, prefixSpamBan, SpamBan)
	case strings.HasPrefix(raw, prefixTicketModal):
		return single(raw, prefixTicketModal, TicketModal)
	case strings.HasPrefix(raw, prefixTicketJoin):
		return single(raw, prefixTicketJoin, TicketJoin)
	case strings.HasPrefix(raw, prefixTicketClaim):
		return single(raw, prefixTicketClaim, TicketClaim)
	case strings.HasPrefix(raw, prefixTicketClose):
		return single(raw, prefixTicketClose, TicketClose)
	case strings.HasPrefix(raw, prefixTicketCloseAlt):
		return single(raw, prefixTicketCloseAlt, TicketClose)
	case strings.HasPrefix(raw, prefixCloseAccept):
		return single(raw, prefixCloseAccept, CloseAccept)
	case strings.HasPrefix(raw, prefixCloseDeny):
		return single(raw, prefixCloseDeny, CloseDeny)
	case strings.HasPrefix(raw, prefixTicketReopen):
		return single(raw, prefixTicketReopen, TicketReopen)
	case strings.HasPrefix(raw, prefixTicketOpen):
		return single(raw, prefixTicketOpen, TicketOpen)
	case strings.HasPrefix(raw, prefixBoosterClaim):
		return single(raw, prefixBoosterClaim, BoosterClaim)
	case strings.HasPrefix(raw, prefixTempVoiceModal):
		return single(raw, prefixTempVoiceModal, TempVoiceModal)
	case strings.HasPrefix(raw, prefixTempVoiceSelect):
		return single(raw, prefixTempVoiceSelect, TempVoiceSelect)
	case strings.HasPrefix(raw, prefixTempVoice):
		return single(raw, prefixTempVoice, TempVoice)
	case strings.HasPrefix(raw, prefixRulesModal):
		return single(raw, prefixRulesModal, RulesModal)
	}
	return ID{}, fmt.Errorf("%w: %q", ErrUnknown, raw)
}

func single(raw, prefix string, build func(string) ID) (ID, error) {
	value := strings.TrimPrefix(raw, prefix)
	if value == "" || strings.Contains(value, ":") {
		return ID{}, fmt.Errorf("%w: %q", ErrUnknown, raw)
	}
	return build(value), nil
}
