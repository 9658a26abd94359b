package notifications

import (
	"fmt"
	"strings"

	"github.com/inkwell-app/inkwell-backend/models"
	"github.com/inkwell-app/inkwell-backend/utils"
)

// Publisher pushes a refresh to live subscribers of a recipient.
type Publisher interface {
	Publish(recipientEmail string)
}

// Event describes an interaction that may produce a notification.
type Event struct {
	Type           string
	ActorName      string
	ActorEmail     string
	RecipientEmail string
	PostSlug       string
	PostTitle      string
	CommentID      *uint
}

// Dispatcher turns interaction events into stored notifications and live
// pushes. Delivery is best effort: a failed dispatch is logged and never
// surfaces to the request that triggered it.
type Dispatcher struct {
	store *Store
	hub   Publisher
}

// NewDispatcher wires the store and hub together.
func NewDispatcher(store *Store, hub Publisher) *Dispatcher {
	return &Dispatcher{store: store, hub: hub}
}

// Dispatch processes an event asynchronously.
func (d *Dispatcher) Dispatch(event Event) {
	go d.dispatch(event)
}

func (d *Dispatcher) dispatch(event Event) {
	if !shouldNotify(event.ActorEmail, event.RecipientEmail) {
		return
	}

	registered, err := d.store.recipientRegistered(event.RecipientEmail)
	if err != nil {
		utils.Sugar.Warnf("notification recipient lookup failed type=%s recipient=%s err=%v",
			event.Type, event.RecipientEmail, err)
		return
	}
	if !registered {
		return
	}

	title, message, ok := renderTemplate(event)
	if !ok {
		utils.Sugar.Warnf("unknown notification type %q dropped", event.Type)
		return
	}

	n := &models.Notification{
		Type:           event.Type,
		Title:          title,
		Message:        message,
		PostSlug:       event.PostSlug,
		PostTitle:      event.PostTitle,
		CommentID:      event.CommentID,
		ActorName:      event.ActorName,
		ActorEmail:     strings.ToLower(event.ActorEmail),
		RecipientEmail: strings.ToLower(event.RecipientEmail),
	}
	if err := d.store.Create(n); err != nil {
		utils.Sugar.Warnf("notification create failed type=%s recipient=%s err=%v",
			event.Type, event.RecipientEmail, err)
		return
	}

	if d.hub != nil {
		d.hub.Publish(n.RecipientEmail)
	}
}

// shouldNotify suppresses self-notifications. Emails are compared
// case-insensitively since providers differ in how they report casing.
func shouldNotify(actorEmail, recipientEmail string) bool {
	if recipientEmail == "" {
		return false
	}
	return !strings.EqualFold(actorEmail, recipientEmail)
}

// renderTemplate maps an event type to its fixed title and message.
func renderTemplate(event Event) (title, message string, ok bool) {
	switch event.Type {
	case models.NotificationTypeComment:
		return "New Comment",
			fmt.Sprintf("%s commented on your post %q", event.ActorName, event.PostTitle),
			true
	case models.NotificationTypeLike:
		return "New Like",
			fmt.Sprintf("%s liked your comment", event.ActorName),
			true
	case models.NotificationTypeReply:
		return "New Reply",
			fmt.Sprintf("%s replied to your comment", event.ActorName),
			true
	}
	return "", "", false
}
