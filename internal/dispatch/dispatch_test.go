// internal/dispatch/dispatch_test.go
package dispatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrimony-pipeline/internal/common/logger"
	"matrimony-pipeline/internal/models"
	"matrimony-pipeline/internal/render"
)

type fakeQueue struct {
	enqueued []*models.NotificationRecord
}

func (f *fakeQueue) Enqueue(_ context.Context, rec *models.NotificationRecord) (string, error) {
	f.enqueued = append(f.enqueued, rec)
	return "id", nil
}

type fakeUsers struct {
	profiles map[string]*models.ProfileSummary
}

func (f *fakeUsers) Resolve(_ context.Context, username string) (*models.ProfileSummary, error) {
	return f.profiles[username], nil
}

func profile(username, firstName string) *models.ProfileSummary {
	return &models.ProfileSummary{
		Username:  username,
		FirstName: firstName,
		Email:     username + "@example.com",
		Phone:     "+919800000001",
		OptIns:    models.ChannelOptIns{Email: true, SMS: true, Push: true},
	}
}

func newDispatcher(queue *fakeQueue, users *fakeUsers, redisClient redis.Cmdable) *Dispatcher {
	return New(queue, users, redisClient, logger.NewNoOpLogger())
}

func TestDispatchResolvesBothProfiles(t *testing.T) {
	queue := &fakeQueue{}
	users := &fakeUsers{profiles: map[string]*models.ProfileSummary{
		"rahul_v": profile("rahul_v", "Rahul"),
		"priya_s": profile("priya_s", "Priya"),
	}}
	d := newDispatcher(queue, users, nil)

	err := d.Dispatch(context.Background(), Event{
		Type:      EventFavoriteAdded,
		Actor:     "rahul_v",
		Recipient: "priya_s",
	})
	require.NoError(t, err)

	require.NotEmpty(t, queue.enqueued)
	data := queue.enqueued[0].TemplateData
	actor := data["actor"].(map[string]interface{})
	user := data["user"].(map[string]interface{})
	assert.Equal(t, "Rahul", actor["firstName"], "actor display name, not username")
	assert.Equal(t, "Priya", user["firstName"], "recipient display name, not username")
}

func TestDispatchDistinctRecipientsRenderTheirOwnNames(t *testing.T) {
	// Same trigger, two recipients: each rendered message references its own
	// recipient's name, never the actor's identifier.
	queue := &fakeQueue{}
	users := &fakeUsers{profiles: map[string]*models.ProfileSummary{
		"jane_d":  profile("jane_d", "Jane"),
		"admin_u": profile("admin_u", "Admin"),
		"priya_s": profile("priya_s", "Priya"),
	}}
	d := newDispatcher(queue, users, nil)

	for _, recipient := range []string{"admin_u", "priya_s"} {
		require.NoError(t, d.Dispatch(context.Background(), Event{
			Type:      EventMutualFavorite,
			Actor:     "jane_d",
			Recipient: recipient,
		}))
	}

	template := "Hi {{user.firstName}}, you matched with {{actor.firstName}}!"
	var rendered []string
	for _, rec := range queue.enqueued {
		if rec.Channel != models.ChannelEmail {
			continue
		}
		rendered = append(rendered, render.Render(template, rec.TemplateData))
	}

	require.Len(t, rendered, 2)
	assert.Equal(t, "Hi Admin, you matched with Jane!", rendered[0])
	assert.Equal(t, "Hi Priya, you matched with Jane!", rendered[1])
	assert.NotContains(t, rendered[0], "jane_d")
}

func TestDispatchFansOutPerChannel(t *testing.T) {
	queue := &fakeQueue{}
	users := &fakeUsers{profiles: map[string]*models.ProfileSummary{
		"priya_s": profile("priya_s", "Priya"),
	}}
	d := newDispatcher(queue, users, nil)

	require.NoError(t, d.Dispatch(context.Background(), Event{
		Type:      EventStatusApproved,
		Recipient: "priya_s",
	}))

	var channels []models.Channel
	for _, rec := range queue.enqueued {
		channels = append(channels, rec.Channel)
		assert.Equal(t, models.TriggerStatusApproved, rec.Trigger)
	}
	assert.ElementsMatch(t, []models.Channel{models.ChannelEmail, models.ChannelSMS}, channels)
}

func TestDispatchPreSendGateSkipsOptedOutChannels(t *testing.T) {
	queue := &fakeQueue{}
	p := profile("priya_s", "Priya")
	p.OptIns.SMS = false
	users := &fakeUsers{profiles: map[string]*models.ProfileSummary{"priya_s": p}}
	d := newDispatcher(queue, users, nil)

	require.NoError(t, d.Dispatch(context.Background(), Event{
		Type:      EventStatusApproved,
		Recipient: "priya_s",
	}))

	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, models.ChannelEmail, queue.enqueued[0].Channel)
}

func TestDispatchRejectsUnknownEventAndMissingUsers(t *testing.T) {
	queue := &fakeQueue{}
	users := &fakeUsers{profiles: map[string]*models.ProfileSummary{
		"priya_s": profile("priya_s", "Priya"),
	}}
	d := newDispatcher(queue, users, nil)

	assert.Error(t, d.Dispatch(context.Background(), Event{Type: "nope", Recipient: "priya_s"}))
	assert.Error(t, d.Dispatch(context.Background(), Event{Type: EventFavoriteAdded, Recipient: "ghost"}))
	assert.Error(t, d.Dispatch(context.Background(), Event{
		Type: EventFavoriteAdded, Actor: "ghost", Recipient: "priya_s"}))
	assert.Empty(t, queue.enqueued)
}

func TestDispatchPublishesEvent(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	sub := client.Subscribe(context.Background(), "events:"+EventProfileViewed)
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	queue := &fakeQueue{}
	users := &fakeUsers{profiles: map[string]*models.ProfileSummary{
		"rahul_v": profile("rahul_v", "Rahul"),
		"priya_s": profile("priya_s", "Priya"),
	}}
	d := newDispatcher(queue, users, client)

	require.NoError(t, d.Dispatch(context.Background(), Event{
		Type:      EventProfileViewed,
		Actor:     "rahul_v",
		Recipient: "priya_s",
	}))

	msg, err := sub.ReceiveMessage(context.Background())
	require.NoError(t, err)

	var published Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &published))
	assert.Equal(t, EventProfileViewed, published.Type)
	assert.Equal(t, "rahul_v", published.Actor)
	assert.False(t, published.At.IsZero())
}
