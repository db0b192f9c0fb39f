package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/r0mbeg/multibank/config"
	"github.com/r0mbeg/multibank/services/auth"
	"github.com/r0mbeg/multibank/services/banking"
	"github.com/r0mbeg/multibank/services/consent"
	"github.com/r0mbeg/multibank/services/gateway"
	"github.com/r0mbeg/multibank/services/session"
)

const usageText = `multibank — open banking aggregator client

Usage:
  multibank <command> [flags]

Commands:
  login      -email -password          authenticate against the aggregator
  register   -email -password ...      create an account and log in
  whoami                               show the current session
  logout                               clear the local session
  banks                                list registered banks
  accounts                             list aggregated accounts
  products                             list the product showcase
  overview                             banks, accounts and products at once
  consents   list                      list consents
  consents   new -bank -client        issue a consent for a bank
  consents   revoke -bank -consent    revoke an authorized consent
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := newLogger(cfg)

	app, err := newApp(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}
	defer app.consents.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, gateway.ErrUnauthorized) {
			fmt.Fprintln(os.Stderr, "session expired or invalid, please log in again")
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// newLogger writes human-readable logs to stderr and full logs to a rotated
// file under the storage directory.
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	fileOut := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.StorageDir, "multibank.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	}
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}

	return zerolog.New(io.MultiWriter(console, fileOut)).Level(level).With().Timestamp().Logger()
}

type app struct {
	store    *session.Service
	auth     *auth.Service
	consents *consent.Service
	banking  *banking.Service
}

func newApp(cfg *config.Config, log zerolog.Logger) (*app, error) {
	store, err := session.NewService(cfg.StorageDir)
	if err != nil {
		return nil, err
	}

	gw := gateway.New(cfg.APIBaseURL, store,
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		gateway.WithLogger(log),
	)

	bankingSvc := banking.NewService(gw)

	return &app{
		store: store,
		auth:  auth.NewService(gw, store, auth.WithLogger(log)),
		consents: consent.NewService(gw,
			consent.WithLogger(log),
			consent.WithInvalidator(bankingSvc.Invalidate),
		),
		banking: bankingSvc,
	}, nil
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return a.login(ctx, args)
	case "register":
		return a.register(ctx, args)
	case "whoami":
		return a.whoami()
	case "logout":
		a.auth.Logout()
		fmt.Println("logged out")
		return nil
	case "banks":
		return a.listBanks(ctx)
	case "accounts":
		return a.listAccounts(ctx)
	case "products":
		return a.listProducts(ctx)
	case "overview":
		return a.overview(ctx)
	case "consents":
		return a.runConsents(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usageText)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	_ = fs.Parse(args)

	if *email == "" || *password == "" {
		return errors.New("login requires -email and -password")
	}
	if err := a.auth.Login(ctx, *email, *password); err != nil {
		return err
	}
	fmt.Println("logged in as", *email)
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	in := auth.RegisterInput{}
	fs.StringVar(&in.Email, "email", "", "account email")
	fs.StringVar(&in.Password, "password", "", "account password")
	fs.StringVar(&in.FirstName, "first-name", "", "first name")
	fs.StringVar(&in.LastName, "last-name", "", "last name")
	fs.StringVar(&in.Patronymic, "patronymic", "", "patronymic")
	fs.StringVar(&in.BirthDate, "birthdate", "", "birthdate, YYYY-MM-DD")
	_ = fs.Parse(args)

	if in.Email == "" || in.Password == "" {
		return errors.New("register requires at least -email and -password")
	}
	if err := a.auth.Register(ctx, in); err != nil {
		return err
	}
	fmt.Println("registered and logged in as", in.Email)
	return nil
}

func (a *app) whoami() error {
	if !a.store.Valid() {
		fmt.Println("not logged in")
		return nil
	}
	snapshot := a.store.Session()
	if snapshot.User == nil {
		fmt.Println("logged in, profile not loaded yet")
	} else {
		fmt.Printf("%s %s %s <%s>\n",
			snapshot.User.LastName, snapshot.User.FirstName, snapshot.User.Patronymic, snapshot.User.Email)
	}
	fmt.Println("session expires at", snapshot.ExpiresAt.Format(time.RFC3339))
	return nil
}

func (a *app) listBanks(ctx context.Context) error {
	banks, err := a.banking.Banks(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tNAME\tENABLED\tAUTHORIZED")
	for _, b := range banks {
		fmt.Fprintf(w, "%s\t%s\t%t\t%t\n", b.Code, b.Name, b.IsEnabled, b.Authorized)
	}
	return w.Flush()
}

func (a *app) listAccounts(ctx context.Context) error {
	accounts, err := a.banking.Accounts(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BANK\tACCOUNT\tNICKNAME\tBALANCE")
	for _, acc := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\n", acc.BankCode, acc.AccountID, acc.Nickname, acc.Amount, acc.Currency)
	}
	return w.Flush()
}

func (a *app) listProducts(ctx context.Context) error {
	products, err := a.banking.Products(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BANK\tTYPE\tNAME\tRATE\tRECOMMENDED")
	for _, p := range products {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%t\n", p.BankCode, p.ProductType, p.ProductName, p.InterestRate, p.IsRecommended)
	}
	return w.Flush()
}

func (a *app) overview(ctx context.Context) error {
	overview, err := a.banking.Overview(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d banks, %d accounts, %d products\n",
		len(overview.Banks), len(overview.Accounts), len(overview.Products))
	return nil
}

func (a *app) runConsents(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		return a.listConsents(ctx)
	case "new":
		return a.newConsent(ctx, args[1:])
	case "revoke":
		return a.revokeConsent(ctx, args[1:])
	default:
		return fmt.Errorf("unknown consents subcommand %q", args[0])
	}
}

func (a *app) listConsents(ctx context.Context) error {
	consents, err := a.consents.List(ctx)
	if err != nil {
		return err
	}
	if len(consents) == 0 {
		fmt.Println("no consents")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BANK\tCLIENT\tCONSENT\tSTATUS")
	for _, c := range consents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.BankCode, c.ClientID, c.ConsentID, c.Status)
	}
	return w.Flush()
}

func (a *app) newConsent(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("consents new", flag.ExitOnError)
	bank := fs.String("bank", "", "bank code")
	client := fs.String("client", "", "client id at the bank")
	_ = fs.Parse(args)

	if *bank == "" || *client == "" {
		return errors.New("consents new requires -bank and -client")
	}
	if err := a.consents.Issue(ctx, *bank, *client); err != nil {
		return err
	}

	// Bank authorization completes out of band; wait out the grace window
	// and show what the backend reports.
	fmt.Printf("consent requested, waiting %s for bank authorization...\n", consent.ReconcileDelay)
	time.Sleep(consent.ReconcileDelay)
	return a.listConsents(ctx)
}

func (a *app) revokeConsent(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("consents revoke", flag.ExitOnError)
	bank := fs.String("bank", "", "bank code")
	consentID := fs.String("consent", "", "consent id")
	_ = fs.Parse(args)

	if *bank == "" || *consentID == "" {
		return errors.New("consents revoke requires -bank and -consent")
	}

	// The consent must be in the cached list so its status can be checked.
	if _, err := a.consents.List(ctx); err != nil {
		return err
	}
	if err := a.consents.Revoke(ctx, *bank, *consentID); err != nil {
		return err
	}
	fmt.Println("consent revoked")
	return nil
}
