package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dukerupert/billow/internal/billing/model"
	tenant "github.com/dukerupert/billow/internal/model"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Public key is an uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

// browserSubscription returns a subscription with real client keys pointing at endpoint.
func browserSubscription(t *testing.T, id, endpoint string) tenant.PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	auth := make([]byte, 16)
	rand.Read(auth)
	return tenant.PushSubscription{
		ID:             id,
		OrganizationID: "org-1",
		Endpoint:       endpoint,
		P256dhKey:      base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		AuthKey:        base64.RawURLEncoding.EncodeToString(auth),
	}
}

func testService(t *testing.T, srv *httptest.Server) *Service {
	t.Helper()
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}
	svc := NewService(Config{VAPIDPublicKey: pub, VAPIDPrivateKey: priv})
	svc.httpClient = srv.Client()
	return svc
}

func TestSend(t *testing.T) {
	var gotAuth, gotEncoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotEncoding = r.Header.Get("Content-Encoding")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	svc := testService(t, srv)
	err := svc.Send(context.Background(), browserSubscription(t, "s1", srv.URL), Payload{Title: "Hi", Body: "there"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.HasPrefix(gotAuth, "vapid ") {
		t.Errorf("authorization = %q, want vapid scheme", gotAuth)
	}
	if gotEncoding != "aes128gcm" {
		t.Errorf("content-encoding = %q, want %q", gotEncoding, "aes128gcm")
	}
}

func TestSendExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	err := testService(t, srv).Send(context.Background(), browserSubscription(t, "s1", srv.URL), Payload{Title: "x"})
	if !errors.Is(err, ErrExpired) {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

type fakeSubscriptions struct {
	subs    []tenant.PushSubscription
	removed []string
}

func (f *fakeSubscriptions) ListByOrganization(_ context.Context, orgID string) ([]tenant.PushSubscription, error) {
	var out []tenant.PushSubscription
	for _, s := range f.subs {
		if s.OrganizationID == orgID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubscriptions) Unsubscribe(_ context.Context, _, endpoint string) (bool, error) {
	f.removed = append(f.removed, endpoint)
	return true, nil
}

func TestNotifierPrunesExpired(t *testing.T) {
	var delivered atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/gone") {
			w.WriteHeader(http.StatusGone)
			return
		}
		delivered.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	subs := &fakeSubscriptions{subs: []tenant.PushSubscription{
		browserSubscription(t, "s1", srv.URL+"/ok"),
		browserSubscription(t, "s2", srv.URL+"/gone"),
	}}
	orgOf := func(context.Context, string) (string, error) { return "org-1", nil }
	n := NewNotifier(testService(t, srv), subs, orgOf, slog.New(slog.NewTextHandler(io.Discard, nil)))

	hooks := n.Hooks()
	if hooks.OnSubscriptionCreated == nil {
		t.Fatal("expected hooks with VAPID keys configured")
	}
	hooks.OnSubscriptionCreated(context.Background(), model.Subscription{ID: "sub-1", CustomerID: "cust-1"})

	if delivered.Load() != 1 {
		t.Errorf("delivered = %d, want 1", delivered.Load())
	}
	if len(subs.removed) != 1 || subs.removed[0] != srv.URL+"/gone" {
		t.Errorf("removed = %v, want the expired endpoint", subs.removed)
	}
}

func TestNotifierSkipsHealthyUpdates(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	subs := &fakeSubscriptions{subs: []tenant.PushSubscription{browserSubscription(t, "s1", srv.URL)}}
	orgOf := func(context.Context, string) (string, error) { return "org-1", nil }
	hooks := NewNotifier(testService(t, srv), subs, orgOf, slog.New(slog.NewTextHandler(io.Discard, nil))).Hooks()

	hooks.OnSubscriptionUpdated(context.Background(), model.Subscription{Status: model.StatusActive})
	if calls.Load() != 0 {
		t.Errorf("calls = %d, want 0 for an active subscription", calls.Load())
	}
	hooks.OnSubscriptionUpdated(context.Background(), model.Subscription{Status: model.StatusPastDue})
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 for a past-due subscription", calls.Load())
	}
}

func TestHooksEmptyWithoutKeys(t *testing.T) {
	n := NewNotifier(NewService(Config{}), &fakeSubscriptions{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if n.Hooks().OnSubscriptionCreated != nil {
		t.Error("expected empty hooks without VAPID keys")
	}
}
