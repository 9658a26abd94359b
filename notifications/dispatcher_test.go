package notifications

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-app/inkwell-backend/models"
)

type recordingPublisher struct {
	published []string
}

func (p *recordingPublisher) Publish(email string) {
	p.published = append(p.published, email)
}

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name        string
		event       Event
		wantTitle   string
		wantMessage string
	}{
		{
			name: "comment",
			event: Event{
				Type:      models.NotificationTypeComment,
				ActorName: "Alice",
				PostTitle: "My First Post",
			},
			wantTitle:   "New Comment",
			wantMessage: `Alice commented on your post "My First Post"`,
		},
		{
			name:        "like",
			event:       Event{Type: models.NotificationTypeLike, ActorName: "Bob"},
			wantTitle:   "New Like",
			wantMessage: "Bob liked your comment",
		},
		{
			name:        "reply",
			event:       Event{Type: models.NotificationTypeReply, ActorName: "Carol"},
			wantTitle:   "New Reply",
			wantMessage: "Carol replied to your comment",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, message, ok := renderTemplate(tt.event)
			require.True(t, ok)
			assert.Equal(t, tt.wantTitle, title)
			assert.Equal(t, tt.wantMessage, message)
		})
	}
}

func TestRenderTemplateUnknownType(t *testing.T) {
	_, _, ok := renderTemplate(Event{Type: "mention"})
	assert.False(t, ok)
}

func TestShouldNotify(t *testing.T) {
	assert.True(t, shouldNotify("alice@example.com", "bob@example.com"))
	assert.False(t, shouldNotify("alice@example.com", "alice@example.com"))
	// Self comparison is case-insensitive.
	assert.False(t, shouldNotify("Alice@Example.com", "alice@example.com"))
	assert.False(t, shouldNotify("alice@example.com", ""))
}

func TestDispatchSuppressesSelfNotification(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	store.SetReady()
	pub := &recordingPublisher{}
	d := NewDispatcher(store, pub)

	require.NoError(t, db.Create(&models.User{Email: "alice@example.com", DisplayName: "Alice"}).Error)

	d.dispatch(Event{
		Type:           models.NotificationTypeComment,
		ActorName:      "Alice",
		ActorEmail:     "Alice@Example.com",
		RecipientEmail: "alice@example.com",
		PostTitle:      "Self Talk",
	})

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, pub.published)
}

func TestDispatchSkipsUnregisteredRecipient(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	store.SetReady()
	pub := &recordingPublisher{}
	d := NewDispatcher(store, pub)

	d.dispatch(Event{
		Type:           models.NotificationTypeComment,
		ActorName:      "Alice",
		ActorEmail:     "alice@example.com",
		RecipientEmail: "ghost@example.com",
	})

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, pub.published)
}

func TestDispatchCreatesAndPublishes(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	store.SetReady()
	pub := &recordingPublisher{}
	d := NewDispatcher(store, pub)

	require.NoError(t, db.Create(&models.User{Email: "bob@example.com", DisplayName: "Bob"}).Error)

	d.dispatch(Event{
		Type:           models.NotificationTypeComment,
		ActorName:      "Alice",
		ActorEmail:     "alice@example.com",
		RecipientEmail: "Bob@Example.com",
		PostSlug:       "hello-world",
		PostTitle:      "Hello World",
	})

	var n models.Notification
	require.NoError(t, db.First(&n).Error)
	assert.Equal(t, "New Comment", n.Title)
	assert.Equal(t, "bob@example.com", n.RecipientEmail)
	assert.Equal(t, "alice@example.com", n.ActorEmail)
	assert.False(t, n.IsRead)
	assert.Equal(t, []string{"bob@example.com"}, pub.published)
}
