package banking

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/r0mbeg/multibank/models"
)

// Client is the slice of the request gateway used by the readers. Readers
// never attach tokens themselves — the gateway owns that.
type Client interface {
	GetJSON(ctx context.Context, path string, out any) error
}

// Overview is a combined snapshot of everything the aggregator can show.
type Overview struct {
	Banks    []models.Bank
	Accounts []models.Account
	Products []models.Product
}

// Service is a read-through cache over the bank, account and product
// endpoints. No state of its own beyond the caches, which are derived,
// invalidated wholesale on consent mutations, and safe to recompute from
// scratch at any time.
type Service struct {
	api Client

	mu         sync.RWMutex
	banks      []models.Bank
	accounts   []models.Account
	products   []models.Product
	banksOK    bool
	accountsOK bool
	productsOK bool
}

// NewService creates the banking readers.
func NewService(api Client) *Service {
	return &Service{api: api}
}

// Banks returns the registered banks, fetching once and serving from cache
// until invalidated.
func (s *Service) Banks(ctx context.Context) ([]models.Bank, error) {
	s.mu.RLock()
	if s.banksOK {
		banks := make([]models.Bank, len(s.banks))
		copy(banks, s.banks)
		s.mu.RUnlock()
		return banks, nil
	}
	s.mu.RUnlock()

	var banks []models.Bank
	if err := s.api.GetJSON(ctx, "/banks", &banks); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.banks = banks
	s.banksOK = true
	s.mu.Unlock()

	out := make([]models.Bank, len(banks))
	copy(out, banks)
	return out, nil
}

// Accounts returns the aggregated accounts across all consented banks.
func (s *Service) Accounts(ctx context.Context) ([]models.Account, error) {
	s.mu.RLock()
	if s.accountsOK {
		accounts := make([]models.Account, len(s.accounts))
		copy(accounts, s.accounts)
		s.mu.RUnlock()
		return accounts, nil
	}
	s.mu.RUnlock()

	var accounts []models.Account
	if err := s.api.GetJSON(ctx, "/accounts", &accounts); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.accounts = accounts
	s.accountsOK = true
	s.mu.Unlock()

	out := make([]models.Account, len(accounts))
	copy(out, accounts)
	return out, nil
}

// Products returns the product showcase across banks.
func (s *Service) Products(ctx context.Context) ([]models.Product, error) {
	s.mu.RLock()
	if s.productsOK {
		products := make([]models.Product, len(s.products))
		copy(products, s.products)
		s.mu.RUnlock()
		return products, nil
	}
	s.mu.RUnlock()

	var products []models.Product
	if err := s.api.GetJSON(ctx, "/products", &products); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.products = products
	s.productsOK = true
	s.mu.Unlock()

	out := make([]models.Product, len(products))
	copy(out, products)
	return out, nil
}

// Overview fetches banks, accounts and products concurrently and returns
// the combined snapshot. The first error cancels the remaining fetches.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	var overview Overview

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error {
		banks, err := s.Banks(ctx)
		overview.Banks = banks
		return err
	})
	p.Go(func(ctx context.Context) error {
		accounts, err := s.Accounts(ctx)
		overview.Accounts = accounts
		return err
	})
	p.Go(func(ctx context.Context) error {
		products, err := s.Products(ctx)
		overview.Products = products
		return err
	})

	if err := p.Wait(); err != nil {
		return Overview{}, err
	}
	return overview, nil
}

// Invalidate drops every cache. Called after consent mutations so account
// data that depended on a consent is refetched.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.banks = nil
	s.accounts = nil
	s.products = nil
	s.banksOK = false
	s.accountsOK = false
	s.productsOK = false
}
