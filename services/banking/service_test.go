package banking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r0mbeg/multibank/models"
)

// fakeAPI counts calls per path and serves canned payloads.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calls: map[string]int{}, fail: map[string]error{}}
}

func (f *fakeAPI) GetJSON(ctx context.Context, path string, out any) error {
	f.mu.Lock()
	f.calls[path]++
	err := f.fail[path]
	f.mu.Unlock()
	if err != nil {
		return err
	}

	switch v := out.(type) {
	case *[]models.Bank:
		*v = []models.Bank{{ID: 1, Code: "abank", Name: "A Bank", IsEnabled: true}}
	case *[]models.Account:
		*v = []models.Account{{AccountID: "acc-1", BankCode: "abank", Amount: "100.00", Currency: "RUB"}}
	case *[]models.Product:
		*v = []models.Product{{ProductID: "prod-1", BankCode: "abank", ProductName: "Deposit", IsRecommended: true}}
	}
	return nil
}

func (f *fakeAPI) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func TestBanks_ServedFromCacheAfterFirstFetch(t *testing.T) {
	api := newFakeAPI()
	svc := NewService(api)

	first, err := svc.Banks(context.Background())
	require.NoError(t, err)
	second, err := svc.Banks(context.Background())
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, api.count("/banks"))
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	api := newFakeAPI()
	svc := NewService(api)

	_, err := svc.Accounts(context.Background())
	require.NoError(t, err)

	svc.Invalidate()

	_, err = svc.Accounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, api.count("/accounts"))
}

func TestProducts_CarriesRecommendedFlag(t *testing.T) {
	svc := NewService(newFakeAPI())

	products, err := svc.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.True(t, products[0].IsRecommended)
}

func TestOverview_FetchesEverything(t *testing.T) {
	api := newFakeAPI()
	svc := NewService(api)

	overview, err := svc.Overview(context.Background())
	require.NoError(t, err)

	require.Len(t, overview.Banks, 1)
	require.Len(t, overview.Accounts, 1)
	require.Len(t, overview.Products, 1)
	require.Equal(t, 1, api.count("/banks"))
	require.Equal(t, 1, api.count("/accounts"))
	require.Equal(t, 1, api.count("/products"))
}

func TestOverview_PropagatesFirstError(t *testing.T) {
	api := newFakeAPI()
	wantErr := errors.New("connection failed")
	api.fail["/accounts"] = wantErr
	svc := NewService(api)

	_, err := svc.Overview(context.Background())
	require.ErrorIs(t, err, wantErr)
}

func TestReaders_ReturnCopies(t *testing.T) {
	svc := NewService(newFakeAPI())

	banks, err := svc.Banks(context.Background())
	require.NoError(t, err)
	banks[0].Code = "mutated"

	again, err := svc.Banks(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abank", again[0].Code)
}
