package telegram

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/psds-microservice/support-bot/internal/bot"
)

const (
	labelCreate = "Create ticket"
	labelClose  = "Close ticket"
	labelList   = "Active tickets"
	labelBack   = "Back"

	iconCreate = "📩"
	iconClose  = "❌"
	iconList   = "📋"
	iconBack   = "🔙"
	iconReply  = "📩"
)

var replyLabel = regexp.MustCompile(`^Reply to ticket \((\d+)\)`)

// Label: текст кнопки для действия. Обратное преобразование: ParseIntent.
func Label(a bot.Affordance) string {
	switch a.Intent {
	case bot.IntentCreateTicket:
		return labelCreate + " " + iconCreate
	case bot.IntentCloseTicket:
		return labelClose + " " + iconClose
	case bot.IntentListTickets:
		if a.Count > 0 {
			return fmt.Sprintf("%s %s (+%d)", labelList, iconList, a.Count)
		}
		return labelList + " " + iconList
	case bot.IntentSelectTicket:
		return fmt.Sprintf("Reply to ticket (%d) %s", a.TicketID, iconReply)
	case bot.IntentBack:
		return labelBack + " " + iconBack
	case bot.IntentStart:
		return "/start"
	default:
		return ""
	}
}

// ParseIntent определяет намерение по тексту. Всё, что не кнопка и не /start,
// считается свободным текстом.
func ParseIntent(text string) (bot.Intent, uint64) {
	t := strings.TrimSpace(text)
	switch {
	case t == "/start" || strings.HasPrefix(t, "/start@") || strings.HasPrefix(t, "/start "):
		return bot.IntentStart, 0
	case isLabel(t, labelCreate, iconCreate):
		return bot.IntentCreateTicket, 0
	case isLabel(t, labelClose, iconClose):
		return bot.IntentCloseTicket, 0
	case isLabel(t, labelBack, iconBack):
		return bot.IntentBack, 0
	case strings.HasPrefix(t, labelList+" "+iconList) || t == labelList:
		return bot.IntentListTickets, 0
	}
	if m := replyLabel.FindStringSubmatch(t); m != nil {
		if id, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			return bot.IntentSelectTicket, id
		}
	}
	return bot.IntentText, 0
}

func isLabel(t, base, icon string) bool {
	return t == base || t == base+" "+icon
}
