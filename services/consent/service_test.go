package consent_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/r0mbeg/multibank/models"
	"github.com/r0mbeg/multibank/services/consent"
	"github.com/r0mbeg/multibank/services/gateway"
)

type staticToken struct{}

func (staticToken) Token() string { return "abc" }
func (staticToken) Logout()       {}

// consentBackend is a fake aggregator holding a mutable consent set. Issued
// consents start AwaitingAuthorization and flip to Authorized after
// authorizeAfter further GET /consents calls, mimicking the out-of-band
// bank authorization.
type consentBackend struct {
	mu             sync.Mutex
	consents       []models.Consent
	authorizeAfter int
	listCalls      int
	deleteCalls    int
	failDelete     bool
}

func (b *consentBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /consents", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.listCalls++
		if b.authorizeAfter > 0 {
			b.authorizeAfter--
			if b.authorizeAfter == 0 {
				for i := range b.consents {
					b.consents[i].Status = models.ConsentAuthorized
				}
			}
		}
		json.NewEncoder(w).Encode(b.consents)
	})
	mux.HandleFunc("POST /consent", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.consents = append(b.consents, models.Consent{
			BankCode:  req["bank_code"],
			ClientID:  req["client_id"],
			ConsentID: "consent-" + req["client_id"],
			Status:    models.ConsentAwaitingAuthorization,
		})
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("DELETE /consent", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.deleteCalls++
		if b.failDelete {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		kept := b.consents[:0]
		for _, c := range b.consents {
			if c.BankCode != req["bank_code"] || c.ClientID != req["client_id"] {
				kept = append(kept, c)
			}
		}
		b.consents = kept
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (b *consentBackend) deletes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleteCalls
}

func newConsentFixture(t *testing.T, backend *consentBackend, opts ...consent.Option) *consent.Service {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	gw := gateway.New(srv.URL, staticToken{})
	opts = append([]consent.Option{
		consent.WithReconcileDelay(10 * time.Millisecond),
		consent.WithReconcileInterval(10 * time.Millisecond),
	}, opts...)
	svc := consent.NewService(gw, opts...)
	t.Cleanup(svc.Close)
	return svc
}

func TestList_ReplacesCacheWholesale(t *testing.T) {
	backend := &consentBackend{consents: []models.Consent{
		{BankCode: "abank", ClientID: "client-1", ConsentID: "consent-1", Status: models.ConsentAuthorized},
		{BankCode: "bbank", ClientID: "client-2", ConsentID: "consent-2", Status: models.ConsentAwaitingAuthorization},
	}}
	svc := newConsentFixture(t, backend)

	consents, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, consents, 2)

	// A record the refetch omits disappears from the local view.
	backend.mu.Lock()
	backend.consents = backend.consents[:1]
	backend.mu.Unlock()

	consents, err = svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, consents, 1)
	require.Len(t, svc.Cached(), 1)
}

func TestIssue_StartsAwaitingThenAuthorized(t *testing.T) {
	backend := &consentBackend{authorizeAfter: 2}
	svc := newConsentFixture(t, backend)

	require.NoError(t, svc.Issue(context.Background(), "abank", "client-42"))

	consents, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, consents, 1)
	require.Equal(t, "abank", consents[0].BankCode)
	require.Equal(t, "client-42", consents[0].ClientID)
	require.Equal(t, models.ConsentAwaitingAuthorization, consents[0].Status)

	// The scheduled reconcile keeps re-listing until the backend reports
	// the transition; the local view is only ever overwritten by refetch.
	require.Eventually(t, func() bool {
		cached := svc.Cached()
		return len(cached) == 1 && cached[0].Status == models.ConsentAuthorized
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRevoke_AuthorizedRemovesFromView(t *testing.T) {
	backend := &consentBackend{consents: []models.Consent{
		{BankCode: "abank", ClientID: "client-1", ConsentID: "consent-1", Status: models.ConsentAuthorized},
	}}

	invalidated := false
	svc := newConsentFixture(t, backend, consent.WithInvalidator(func() { invalidated = true }))

	_, err := svc.List(context.Background())
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), "abank", "consent-1"))

	require.Empty(t, svc.Cached(), "acknowledged revoke removes the cached entry")
	require.True(t, invalidated, "dependent caches must be dropped")

	consents, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, consents)
	require.Equal(t, 1, backend.deletes())
}

func TestRevoke_AwaitingIssuesNoCall(t *testing.T) {
	backend := &consentBackend{consents: []models.Consent{
		{BankCode: "abank", ClientID: "client-1", ConsentID: "consent-1", Status: models.ConsentAwaitingAuthorization},
	}}
	svc := newConsentFixture(t, backend)

	_, err := svc.List(context.Background())
	require.NoError(t, err)

	err = svc.Revoke(context.Background(), "abank", "consent-1")
	require.ErrorIs(t, err, consent.ErrNotAuthorized)
	require.Equal(t, 0, backend.deletes())
	require.Len(t, svc.Cached(), 1)
}

func TestRevoke_UnknownConsent(t *testing.T) {
	backend := &consentBackend{}
	svc := newConsentFixture(t, backend)

	_, err := svc.List(context.Background())
	require.NoError(t, err)

	err = svc.Revoke(context.Background(), "abank", "missing")
	require.ErrorIs(t, err, consent.ErrNotFound)
	require.Equal(t, 0, backend.deletes())
}

func TestRevoke_BackendFailureKeepsView(t *testing.T) {
	backend := &consentBackend{
		failDelete: true,
		consents: []models.Consent{
			{BankCode: "abank", ClientID: "client-1", ConsentID: "consent-1", Status: models.ConsentAuthorized},
		},
	}
	svc := newConsentFixture(t, backend)

	_, err := svc.List(context.Background())
	require.NoError(t, err)

	err = svc.Revoke(context.Background(), "abank", "consent-1")
	require.Error(t, err)

	// Confirmed-then-applied: no acknowledgment, no local removal.
	require.Len(t, svc.Cached(), 1)
}

func TestClose_StopsPendingReconcile(t *testing.T) {
	backend := &consentBackend{}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	svc := consent.NewService(gateway.New(srv.URL, staticToken{}),
		consent.WithReconcileDelay(20*time.Millisecond))

	require.NoError(t, svc.Issue(context.Background(), "abank", "client-1"))
	svc.Close()

	time.Sleep(50 * time.Millisecond)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Equal(t, 0, backend.listCalls, "a stopped timer must not refetch")
}
