package conversation

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Ananth-NQI/linkup-backend/internal/models"
)

// InboundMessage is the canonical form of an inbound SMS webhook.
type InboundMessage struct {
	MessageID         string
	ProviderMessageID string
	From              string
	To                string
	Body              string
	NormalizedBody    string
}

// NewInboundMessage builds the canonical payload. Addresses are normalized to
// E.164 and the body is NFKC-folded, whitespace-collapsed and upper-cased.
func NewInboundMessage(messageID, providerMessageID, from, to, body string) InboundMessage {
	if providerMessageID == "" {
		providerMessageID = messageID
	}
	return InboundMessage{
		MessageID:         messageID,
		ProviderMessageID: providerMessageID,
		From:              models.NormalizePhone(from),
		To:                models.NormalizePhone(to),
		Body:              body,
		NormalizedBody:    NormalizeBody(body),
	}
}

// NormalizeBody folds compatibility characters (full-width letters, ligatures)
// before collapsing whitespace, so "ＳＴＯＰ" compares equal to "STOP".
func NormalizeBody(body string) string {
	folded := norm.NFKC.String(body)
	return strings.ToUpper(strings.Join(strings.Fields(folded), " "))
}

// ReplyKey is the idempotency key of the reply to an inbound message.
func ReplyKey(messageID string) string {
	return "reply:" + messageID
}
