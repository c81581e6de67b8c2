package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/billow/internal/billing/model"
	"github.com/dukerupert/billow/internal/billing/payment"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, orgID string) *Client {
	return &Client{
		hub:            hub,
		conn:           nil,
		send:           make(chan []byte, sendBufferSize),
		organizationID: orgID,
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func expectNone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected message: %s", data)
	default:
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "")
	c2 := mockClient(hub, "org-1")

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)
	// Should not panic
	hub.Unregister(c2)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastFiltersByOrganization(t *testing.T) {
	hub := NewHub(slog.Default())

	all := mockClient(hub, "")
	org1 := mockClient(hub, "org-1")
	org2 := mockClient(hub, "org-2")
	for _, c := range []*Client{all, org1, org2} {
		hub.Register(c)
		defer hub.Unregister(c)
	}

	hub.Broadcast(NewMessage("subscription", "updated", "sub-1", "org-1", map[string]any{"status": "active"}))

	for _, c := range []*Client{all, org1} {
		got := receive(t, c)
		if got.Type != "subscription_updated" {
			t.Errorf("type = %q, want %q", got.Type, "subscription_updated")
		}
		if got.ID != "sub-1" {
			t.Errorf("id = %q, want %q", got.ID, "sub-1")
		}
		if got.Extra["status"] != "active" {
			t.Errorf("extra.status = %v, want active", got.Extra["status"])
		}
	}
	expectNone(t, org2)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Broadcast(NewMessage("customer", "created", "c1", "", nil))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, "")
	hub.Register(c)
	defer hub.Unregister(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage("test", "fill", "", "", nil))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(NewMessage("test", "dropped", "", "", nil))

	count := 0
	for len(c.send) > 0 {
		<-c.send
		count++
	}
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("subscription", "canceled", "sub-5", "org-9", nil)
	if msg.Type != "subscription_canceled" {
		t.Errorf("Type = %q, want %q", msg.Type, "subscription_canceled")
	}
	if msg.Entity != "subscription" {
		t.Errorf("Entity = %q, want %q", msg.Entity, "subscription")
	}
	if msg.Action != "canceled" {
		t.Errorf("Action = %q, want %q", msg.Action, "canceled")
	}
	if msg.OrganizationID != "org-9" {
		t.Errorf("OrganizationID = %q, want %q", msg.OrganizationID, "org-9")
	}
}

func TestHooksBroadcastLifecycle(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, "org-1")
	hub.Register(c)
	defer hub.Unregister(c)

	hooks := Hooks(hub, func(_ context.Context, customerID string) (string, error) {
		if customerID == "cust-1" {
			return "org-1", nil
		}
		return "", nil
	})

	hooks.OnSubscriptionCreated(context.Background(), model.Subscription{ID: "sub-1", CustomerID: "cust-1", Status: model.StatusActive})
	if got := receive(t, c); got.Type != "subscription_created" || got.OrganizationID != "org-1" {
		t.Errorf("got %+v, want subscription_created for org-1", got)
	}

	hooks.OnCustomerUpdated(context.Background(), model.Customer{ID: "cust-1", ReferenceID: "org-1"})
	if got := receive(t, c); got.Type != "customer_updated" {
		t.Errorf("Type = %q, want %q", got.Type, "customer_updated")
	}

	hooks.OnSubscriptionCanceled(context.Background(), model.Subscription{ID: "sub-2", CustomerID: "other"})
	expectNone(t, c)
}

func TestHooksBroadcastWebhook(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, "")
	hub.Register(c)
	defer hub.Unregister(c)

	hooks := Hooks(hub, func(context.Context, string) (string, error) { return "", nil })
	hooks.OnWebhookReceived(context.Background(), payment.SubscriptionUpdatedEvent{
		EventMeta: payment.EventMeta{ID: "evt_1", VendorType: "customer.subscription.updated"},
	})

	got := receive(t, c)
	if got.Type != "webhook_received" {
		t.Errorf("Type = %q, want %q", got.Type, "webhook_received")
	}
	if got.Extra["event"] != string(payment.EventSubscriptionUpdated) {
		t.Errorf("extra.event = %v, want %q", got.Extra["event"], payment.EventSubscriptionUpdated)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, "")
			hub.Register(c)
			hub.Broadcast(NewMessage("test", "concurrent", "", "", nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
