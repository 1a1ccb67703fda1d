package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "12345", "Hello Test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := mock.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", msgs[0].Body)
	}
}

func TestMockClient_Authorized(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()
	if ok, err := mock.Authorized(ctx); !ok || err != nil {
		t.Fatalf("expected authorised mock, got %v, %v", ok, err)
	}
	mock.Allowed = false
	if ok, _ := mock.Authorized(ctx); ok {
		t.Error("expected denied after Allowed=false")
	}
	mock.ProbeErr = errors.New("timeout")
	if _, err := mock.Authorized(ctx); err == nil {
		t.Error("expected probe error")
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without sending number")
	}
	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromWhats("whatsapp:+15550001111"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.accountSID != "AC123" || c.fromWhats != "whatsapp:+15550001111" {
		t.Errorf("options not applied: %+v", c)
	}
}
