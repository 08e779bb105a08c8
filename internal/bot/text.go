package bot

import (
	"fmt"
	"strings"

	"github.com/psds-microservice/support-bot/internal/model"
)

const (
	msgUserHelloIdle     = "Hi! Use the button below to create a new ticket."
	msgUserHelloOpen     = "Hi! You have an open ticket #%d. Write a message or close it."
	msgDescribe          = "Describe your request:"
	msgAlreadyOpen       = "You already have an open ticket. Close it to create a new one."
	msgTicketCreated     = "Ticket #%d created. Wait for the administrator's reply."
	msgMessageAdded      = "Message added to ticket #%d."
	msgNoOpenTicket      = "You have no open tickets."
	msgUserClosed        = "Ticket #%d closed. Use the button below to create a new one."
	msgUseButtons        = "Use the buttons to manage tickets."
	msgAdminNotNotified  = "Your message is saved, but the administrator could not be notified right now."
	msgEscalated         = "Your conversation was passed to the administrator as ticket #%d. Wait for a reply."
	msgAssistantFailed   = "Sorry, I could not process your message. Please try again later."
	msgAdminReplyToUser  = "Administrator reply to your ticket #%d:\n\n%s"
	msgClosedByAdmin     = "Your ticket #%d was closed by the administrator."
	msgDescribeExpired   = "Ticket creation was cancelled due to inactivity."
	msgAssistantExpired  = "The conversation with the assistant was closed due to inactivity."
	msgAdminHello        = "Hello, administrator! Use the buttons below to manage tickets."
	msgAdminUseButtons   = "Use the provided buttons: pick a ticket from the active list to reply."
	msgAdminIsAdmin      = "You are the administrator. Use the \"Active tickets\" button."
	msgNoActiveTickets   = "No active tickets."
	msgNotFoundOrClosed  = "Ticket not found or closed."
	msgBackToMenu        = "Back to the main menu."
	msgSelectFirst       = "Select a ticket first."
	msgReplySent         = "Reply sent to %s."
	msgReplyNotDelivered = "Reply saved to ticket #%d, but delivery to %s failed: %v"
	msgAdminClosed       = "Ticket #%d closed."
	msgOwnerNotNotified  = "Ticket #%d closed, but %s could not be notified: %v"
	msgReplyExpired      = "Reply mode for ticket #%d ended due to inactivity."
	msgForbidden         = "You don't have access to this command."
	msgInternal          = "Something went wrong. Please try again."
)

func newTicketNotice(t *model.Ticket, body string) string {
	return fmt.Sprintf("New ticket #%d from %s.\n\nMessage: %s", t.ID, t.OwnerLabel, body)
}

func updatedTicketNotice(t *model.Ticket, body string) string {
	return fmt.Sprintf("Ticket #%d updated by %s.\n\nNew message: %s", t.ID, t.OwnerLabel, body)
}

func escalatedTicketNotice(t *model.Ticket, transcript string) string {
	return fmt.Sprintf("Ticket #%d from %s escalated by the assistant.\n\n%s", t.ID, t.OwnerLabel, transcript)
}

func userClosedNotice(t *model.Ticket) string {
	return fmt.Sprintf("Ticket #%d was closed by %s.", t.ID, t.OwnerLabel)
}

func renderTicketList(tickets []model.Ticket) string {
	var b strings.Builder
	b.WriteString("Active tickets:\n\n")
	for _, t := range tickets {
		fmt.Fprintf(&b, "ID: %d\nUser: %s (ID: %d)\nRequest: %s", t.ID, t.OwnerLabel, t.OwnerID, t.FirstMessage)
		if t.Unseen {
			b.WriteString(" (updated)")
		}
		b.WriteString("\n\n")
	}
	b.WriteString("Choose a ticket to reply:")
	return b.String()
}

func renderConversation(t *model.Ticket, messages []model.Message, adminID int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation for ticket #%d with %s:\n\n", t.ID, t.OwnerLabel)
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", senderName(m.SenderID, adminID), m.Body)
	}
	return b.String()
}

func senderName(senderID, adminID int64) string {
	switch senderID {
	case adminID:
		return "Admin"
	case model.BotSenderID:
		return "Assistant"
	default:
		return "User"
	}
}
