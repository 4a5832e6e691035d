package inform

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/airenas/callrec/internal/pkg/events"
	"github.com/airenas/callrec/internal/pkg/test"
	"github.com/jordan-wright/email"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	senderMock *mockEmailSender
	makerMock  *mockEmailMaker
	srvData    *ServiceData
	inf        *informer
	now        time.Time
)

func initTest(t *testing.T) {
	t.Helper()
	senderMock = &mockEmailSender{}
	makerMock = &mockEmailMaker{}
	srvData = &ServiceData{Events: events.NewBus(5), EmailSender: senderMock, EmailMaker: makerMock, RepeatAfter: time.Hour}
	now = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	inf = &informer{data: srvData, sent: map[string]time.Time{}, nowF: func() time.Time { return now }}
	senderMock.On("Send", mock.Anything).Return(nil)
	makerMock.On("Make", mock.Anything).Return(&email.Email{From: "o@o.lt", Text: []byte("text")}, nil)
}

func Test_handle(t *testing.T) {
	initTest(t)
	err := inf.handle(&events.Event{Type: events.SessionExpired})
	assert.Nil(t, err)
	senderMock.AssertNumberOfCalls(t, "Send", 1)
}

func Test_handle_SkipsInfoEvents(t *testing.T) {
	initTest(t)
	err := inf.handle(&events.Event{Type: events.UploadSucceeded})
	assert.Nil(t, err)
	makerMock.AssertNotCalled(t, "Make", mock.Anything)
}

func Test_handle_NoRepeat(t *testing.T) {
	initTest(t)
	require.Nil(t, inf.handle(&events.Event{Type: events.PermissionRequired, Permission: "CALL_LOG"}))
	require.Nil(t, inf.handle(&events.Event{Type: events.PermissionRequired, Permission: "CALL_LOG"}))
	require.Nil(t, inf.handle(&events.Event{Type: events.PermissionRequired, Permission: "STORAGE"}))
	senderMock.AssertNumberOfCalls(t, "Send", 2)
	now = now.Add(2 * time.Hour)
	require.Nil(t, inf.handle(&events.Event{Type: events.PermissionRequired, Permission: "CALL_LOG"}))
	senderMock.AssertNumberOfCalls(t, "Send", 3)
}

func Test_handle_FailMaker(t *testing.T) {
	initTest(t)
	makerMock.ExpectedCalls = nil
	makerMock.On("Make", mock.Anything).Return(nil, fmt.Errorf("err"))
	err := inf.handle(&events.Event{Type: events.SessionExpired})
	assert.NotNil(t, err)
	assert.Equal(t, 0, len(inf.sent))
}

func Test_handle_FailSender(t *testing.T) {
	initTest(t)
	senderMock.ExpectedCalls = nil
	senderMock.On("Send", mock.Anything).Return(fmt.Errorf("err"))
	err := inf.handle(&events.Event{Type: events.SessionExpired})
	assert.NotNil(t, err)
	// failed one is retried on the next event
	err = inf.handle(&events.Event{Type: events.SessionExpired})
	assert.NotNil(t, err)
	senderMock.AssertNumberOfCalls(t, "Send", 2)
}

func TestStartWorkerService(t *testing.T) {
	initTest(t)
	bus := events.NewBus(5)
	bus.Publish(events.Event{Type: events.SessionExpired})
	srvData.Events = bus
	sent := make(chan struct{}, 1)
	senderMock.ExpectedCalls = nil
	senderMock.On("Send", mock.Anything).Run(func(mock.Arguments) { sent <- struct{}{} }).Return(nil)

	ctx, cf := context.WithCancel(test.Ctx(t))
	done, err := StartWorkerService(ctx, srvData)
	require.Nil(t, err)
	select {
	case <-sent:
	case <-time.After(5 * time.Second):
		require.Fail(t, "not sent")
	}
	cf()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.Fail(t, "not finished")
	}
}

func Test_validate(t *testing.T) {
	initTest(t)
	tests := []struct {
		name    string
		data    *ServiceData
		wantErr bool
	}{
		{name: "OK", data: &ServiceData{Events: events.NewBus(1), EmailSender: senderMock, EmailMaker: makerMock}, wantErr: false},
		{name: "Fail nil", data: nil, wantErr: true},
		{name: "Fail events", data: &ServiceData{EmailSender: senderMock, EmailMaker: makerMock}, wantErr: true},
		{name: "Fail sender", data: &ServiceData{Events: events.NewBus(1), EmailMaker: makerMock}, wantErr: true},
		{name: "Fail maker", data: &ServiceData{Events: events.NewBus(1), EmailSender: senderMock}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.data); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMaker(t *testing.T) {
	c := viper.New()
	c.Set("inform.from", "agent@o.lt")
	c.Set("inform.to", "a@o.lt, b@o.lt")
	c.Set("inform.device", "phone1")
	m, err := NewMaker(c)
	require.Nil(t, err)

	res, err := m.Make(&events.Event{Type: events.PermissionRequired, Permission: "STORAGE", Time: time.Unix(0, 0).UTC()})
	require.Nil(t, err)
	assert.Equal(t, "agent@o.lt", res.From)
	assert.Equal(t, []string{"a@o.lt", "b@o.lt"}, res.To)
	assert.Equal(t, "callrec (phone1): permission required: STORAGE", res.Subject)
	assert.Contains(t, string(res.Text), "STORAGE")

	res, err = m.Make(&events.Event{Type: events.SessionExpired})
	require.Nil(t, err)
	assert.Equal(t, "callrec (phone1): backend session expired", res.Subject)

	_, err = m.Make(&events.Event{Type: events.CallEnded})
	assert.NotNil(t, err)
}

func TestNewMaker_Fail(t *testing.T) {
	c := viper.New()
	_, err := NewMaker(c)
	assert.NotNil(t, err)
	c.Set("inform.from", "agent@o.lt")
	_, err = NewMaker(c)
	assert.NotNil(t, err)
	c.Set("inform.to", "a@o.lt")
	c.Set("inform.location", "Olia/Olia")
	_, err = NewMaker(c)
	assert.NotNil(t, err)
}

type mockEmailSender struct{ mock.Mock }

func (m *mockEmailSender) Send(email *email.Email) error {
	args := m.Called(email)
	return args.Error(0)
}

type mockEmailMaker struct{ mock.Mock }

func (m *mockEmailMaker) Make(ev *events.Event) (*email.Email, error) {
	args := m.Called(ev)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*email.Email), args.Error(1)
}
