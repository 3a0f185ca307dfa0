// internal/jobs/drain/drain_test.go
package drain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "matrimony-pipeline/internal/common/errors"
	"matrimony-pipeline/internal/common/logger"
	"matrimony-pipeline/internal/delivery"
	"matrimony-pipeline/internal/jobs"
	"matrimony-pipeline/internal/models"
)

// ==========================
// Fakes
// ==========================

type fakeQueue struct {
	batch     []models.NotificationRecord
	sent      []string
	failed    map[string]bool // id -> terminal
	failedErr map[string]string
}

func newFakeQueue(batch ...models.NotificationRecord) *fakeQueue {
	return &fakeQueue{batch: batch, failed: map[string]bool{}, failedErr: map[string]string{}}
}

func (f *fakeQueue) ClaimBatch(context.Context, models.Channel, int) ([]models.NotificationRecord, error) {
	return f.batch, nil
}

func (f *fakeQueue) MarkSent(_ context.Context, id string) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeQueue) MarkFailed(_ context.Context, id, errText string, terminal bool) error {
	f.failed[id] = terminal
	f.failedErr[id] = errText
	return nil
}

type fakeTemplates struct {
	templates map[string]*models.NotificationTemplate
}

func (f *fakeTemplates) GetEnabled(_ context.Context, trigger string, _ models.Channel) (*models.NotificationTemplate, error) {
	return f.templates[trigger], nil
}

type fakeUsers struct {
	profiles map[string]*models.ProfileSummary
	optIns   map[string][]bool // username -> recorded writes
}

func newFakeUsers(profiles ...*models.ProfileSummary) *fakeUsers {
	f := &fakeUsers{profiles: map[string]*models.ProfileSummary{}, optIns: map[string][]bool{}}
	for _, p := range profiles {
		f.profiles[p.Username] = p
	}
	return f
}

func (f *fakeUsers) Resolve(_ context.Context, username string) (*models.ProfileSummary, error) {
	return f.profiles[username], nil
}

func (f *fakeUsers) SetChannelOptIn(_ context.Context, username string, _ models.Channel, optedIn bool) error {
	f.optIns[username] = append(f.optIns[username], optedIn)
	return nil
}

type fakeSender struct {
	channel models.Channel
	sends   []string // addresses
	bodies  []string
	err     error
}

func (f *fakeSender) Channel() models.Channel { return f.channel }

func (f *fakeSender) Send(_ context.Context, address, _, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sends = append(f.sends, address)
	f.bodies = append(f.bodies, body)
	return nil
}

// ==========================
// Helpers
// ==========================

func smsRecord(id, recipient string) models.NotificationRecord {
	return models.NotificationRecord{
		ID:          id,
		Recipient:   recipient,
		Channel:     models.ChannelSMS,
		Trigger:     models.TriggerFavorited,
		Status:      models.NotificationPending,
		MaxAttempts: models.DefaultMaxAttempts,
		TemplateData: map[string]interface{}{
			"actor": map[string]interface{}{"firstName": "Rahul"},
			"user":  map[string]interface{}{"firstName": "Priya"},
		},
	}
}

func favoritedTemplates() *fakeTemplates {
	return &fakeTemplates{templates: map[string]*models.NotificationTemplate{
		models.TriggerFavorited: {
			Trigger: models.TriggerFavorited,
			Channel: models.ChannelSMS,
			Body:    "Hi {{user.firstName}}, {{actor.firstName}} favorited you",
			Enabled: true,
		},
	}}
}

func priya() *models.ProfileSummary {
	return &models.ProfileSummary{
		Username: "priya_s",
		FirstName: "Priya",
		Phone:    "+919800000001",
		OptIns:   models.ChannelOptIns{SMS: true},
	}
}

func jcWith(t *testing.T) jobs.JobContext {
	t.Helper()
	return jobs.JobContext{JobName: "drain-sms-queue", Logger: logger.NewNoOpLogger()}
}

// ==========================
// Tests
// ==========================

func TestDrainSendsAndMarksSent(t *testing.T) {
	queue := newFakeQueue(smsRecord("n-1", "priya_s"))
	sender := &fakeSender{channel: models.ChannelSMS}
	tpl := NewSMSTemplate(queue, favoritedTemplates(), newFakeUsers(priya()), sender, time.Second)

	res, err := tpl.Execute(context.Background(), jcWith(t))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionSuccess, res.Status)
	assert.Equal(t, []string{"+919800000001"}, sender.sends)
	assert.Equal(t, []string{"Hi Priya, Rahul favorited you"}, sender.bodies)
	assert.Equal(t, []string{"n-1"}, queue.sent)
	assert.Equal(t, 1, res.Detail["sent"])
}

func TestDrainMissingTemplateIsTerminal(t *testing.T) {
	queue := newFakeQueue(smsRecord("n-1", "priya_s"))
	sender := &fakeSender{channel: models.ChannelSMS}
	tpl := NewSMSTemplate(queue, &fakeTemplates{templates: map[string]*models.NotificationTemplate{}},
		newFakeUsers(priya()), sender, time.Second)

	res, err := tpl.Execute(context.Background(), jcWith(t))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionPartial, res.Status)
	assert.Empty(t, sender.sends, "no provider call without a template")
	assert.True(t, queue.failed["n-1"], "missing template must fail terminally")
}

func TestDrainUnknownRecipientIsTerminal(t *testing.T) {
	queue := newFakeQueue(smsRecord("n-1", "ghost"))
	tpl := NewSMSTemplate(queue, favoritedTemplates(), newFakeUsers(), &fakeSender{channel: models.ChannelSMS}, time.Second)

	_, err := tpl.Execute(context.Background(), jcWith(t))
	require.NoError(t, err)
	assert.True(t, queue.failed["n-1"])
}

func TestDrainRetriableFailureRequeues(t *testing.T) {
	queue := newFakeQueue(smsRecord("n-1", "priya_s"))
	sender := &fakeSender{
		channel: models.ChannelSMS,
		err:     pkgerrors.NewProviderTimeoutError("sms"),
	}
	tpl := NewSMSTemplate(queue, favoritedTemplates(), newFakeUsers(priya()), sender, time.Second)

	res, err := tpl.Execute(context.Background(), jcWith(t))
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionPartial, res.Status)
	terminal, marked := queue.failed["n-1"]
	require.True(t, marked)
	assert.False(t, terminal, "transient failures stay pending for the next pass")
	assert.Equal(t, 1, res.Detail["requeued"])
}

func TestDrainCarrierOptOutSyncsPreference(t *testing.T) {
	users := newFakeUsers(priya())
	queue := newFakeQueue(smsRecord("n-1", "priya_s"))
	sender := &fakeSender{
		channel: models.ChannelSMS,
		err:     pkgerrors.NewRecipientOptedOutError("+919800000001", errors.New("Phone number is opted out")),
	}
	tpl := NewSMSTemplate(queue, favoritedTemplates(), users, sender, time.Second)

	_, err := tpl.Execute(context.Background(), jcWith(t))
	require.NoError(t, err)

	assert.True(t, queue.failed["n-1"], "opt-out is terminal for this channel")
	require.Len(t, users.optIns["priya_s"], 1)
	assert.False(t, users.optIns["priya_s"][0])

	// Processing the same failure again writes the same value; the sync is
	// an idempotent set, never a toggle.
	queue2 := newFakeQueue(smsRecord("n-1", "priya_s"))
	tpl2 := NewSMSTemplate(queue2, favoritedTemplates(), users, sender, time.Second)
	_, err = tpl2.Execute(context.Background(), jcWith(t))
	require.NoError(t, err)
	for _, v := range users.optIns["priya_s"] {
		assert.False(t, v)
	}
}

func TestDrainBudgetExhaustionDefersRestOfBatch(t *testing.T) {
	queue := newFakeQueue(smsRecord("n-1", "priya_s"), smsRecord("n-2", "priya_s"))
	sender := &fakeSender{channel: models.ChannelSMS, err: delivery.ErrDailyBudgetExceeded}
	tpl := NewSMSTemplate(queue, favoritedTemplates(), newFakeUsers(priya()), sender, time.Second)

	res, err := tpl.Execute(context.Background(), jcWith(t))
	require.NoError(t, err)

	// Neither record was marked; both stay pending for the next cycle.
	assert.Empty(t, queue.sent)
	assert.Empty(t, queue.failed)
	assert.Equal(t, 2, res.Detail["deferred"])
}

func TestDrainBatchSizeParameter(t *testing.T) {
	tpl := NewEmailTemplate(newFakeQueue(), &fakeTemplates{}, newFakeUsers(), &fakeSender{channel: models.ChannelEmail}, time.Second)

	require.NoError(t, tpl.ValidateParameters([]byte(`{"batchSize": 25}`)))

	reg := jobs.NewRegistry()
	require.NoError(t, reg.Register(tpl))
	assert.Error(t, reg.Validate(TypeEmail, []byte(`{"batchSize": 0}`)))
	assert.Error(t, reg.Validate(TypeEmail, []byte(`{"batchSize": "lots"}`)))
	assert.NoError(t, reg.Validate(TypeEmail, []byte(`{"batchSize": 100}`)))
	assert.NoError(t, reg.Validate(TypeEmail, nil))
}
