package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"slipdash/internal/api"
	"slipdash/internal/core"
	"slipdash/internal/log"
	"slipdash/internal/preview"
	"slipdash/internal/review"
	"slipdash/internal/services"
	"slipdash/internal/session"
	"slipdash/internal/storage"
)

// app is what every command runs against. The session tier lives for one
// invocation; the persistent tier is the SQLite credential store when keys
// are configured.
type app struct {
	ctx      context.Context
	api      *api.Client
	sessions *session.Manager
	handoff  *review.Handoff
	profile  string
	in       io.Reader
	out      io.Writer
	logger   *log.Logger
	now      func() time.Time
	closers  []func() error
}

func newApp(ctx context.Context, g globals, in io.Reader, out, errOut io.Writer) (*app, error) {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(g.LogLevel),
		Component: log.ComponentCLI,
		Output:    errOut,
	})

	client, err := api.New(g.APIURL, api.WithTimeout(g.Timeout), api.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	a := &app{
		ctx:     ctx,
		api:     client,
		profile: g.Profile,
		in:      in,
		out:     out,
		logger:  logger,
		now:     time.Now,
	}

	var persistent session.Store = session.NewMemoryStore()
	opts := []review.HandoffOption{review.WithLogger(logger)}
	if g.EncKey != "" || g.SignKey != "" {
		sealer, err := storage.NewSealer(g.EncKey, g.SignKey)
		if err != nil {
			return nil, fmt.Errorf("credential keys: %w", err)
		}
		repo, err := storage.NewSQLiteRepository(g.DB, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, repo.Close)
		persistent = storage.NewCredentialStore(repo, sealer)
		// Saved reviews land in the ledger; slipdash-worker exports them.
		opts = append(opts, review.WithObserver(services.NewReviewRecorder(repo, nil, logger)))
	} else {
		logger.Warn("No credential keys configured, login lasts for this command only")
	}

	a.sessions = session.NewManager(session.NewMemoryStore(), persistent)
	a.handoff = review.NewHandoff(client, preview.NewStore(), opts...)
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func (a *app) session() (*session.Session, error) {
	return a.sessions.Session(a.ctx, a.profile)
}

func (a *app) token() (string, error) {
	sess, err := a.session()
	if err != nil {
		return "", err
	}
	return sess.RequireToken()
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// readSecret returns flag when set, otherwise the first line of input.
func (a *app) readSecret(flag, prompt string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	fmt.Fprint(a.out, prompt)
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if s := strings.TrimRight(line, "\r\n"); s != "" {
		return s, nil
	}
	return "", errors.New("password is required")
}

type loginCmd struct {
	Username string `arg:"" help:"Account name."`
	Password string `env:"SLIPDASH_PASSWORD" help:"Password; read from stdin when empty."`
	Remember bool   `default:"true" negatable:"" help:"Keep the token in the credential store."`
}

func (c *loginCmd) Run(a *app) error {
	password, err := a.readSecret(c.Password, "Password: ")
	if err != nil {
		return err
	}
	res, err := a.api.Login(a.ctx, c.Username, password)
	if err != nil {
		return err
	}
	tier, err := a.sessions.Login(a.ctx, a.profile, session.Credentials{Token: res.AccessToken, Username: c.Username}, c.Remember)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s (%s)\n", c.Username, tier)
	return nil
}

type logoutCmd struct{}

func (c *logoutCmd) Run(a *app) error {
	if err := a.sessions.Logout(a.ctx, a.profile); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

type registerCmd struct {
	Username string `arg:"" help:"Account name."`
	Email    string `arg:"" help:"Email address."`
	Password string `env:"SLIPDASH_PASSWORD" help:"Password; read from stdin when empty."`
}

func (c *registerCmd) Run(a *app) error {
	password, err := a.readSecret(c.Password, "Password: ")
	if err != nil {
		return err
	}
	if err := a.api.Register(a.ctx, api.RegisterRequest{Username: c.Username, Email: c.Email, Password: password}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Registered %s, now run: slipctl login %s\n", c.Username, c.Username)
	return nil
}

type uploadCmd struct {
	File     string `arg:"" type:"existingfile" help:"Slip image."`
	// Edit flags left off keep the extracted value; --amount= clears it.
	Bank     *string `help:"Override the bank."`
	Date     *string `help:"Override the transfer date (YYYY-MM-DD)."`
	Time     *string `help:"Override the transfer time (HH:MM)."`
	Amount   *string `help:"Override the amount."`
	Memo     *string `help:"Replace the detected text sent as memo."`
	Category string  `help:"Pick the category instead of the guess."`
	Save     bool    `help:"Send the review to the backend."`
}

func (c *uploadCmd) Run(a *app) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(c.File)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	sess, err := a.session()
	if err != nil {
		return err
	}
	scr, err := a.handoff.Upload(a.ctx, sess, &review.SlipFile{
		Name:        filepath.Base(c.File),
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		return err
	}
	defer scr.Back()

	if err := scr.Apply(c.edits()); err != nil {
		return err
	}
	if c.Category != "" {
		tag, err := core.ParseCategory(c.Category)
		if err != nil {
			return err
		}
		if err := scr.SelectCategory(tag); err != nil {
			return err
		}
	}

	if err := a.printJSON(scr.View(sess)); err != nil {
		return err
	}
	if !c.Save {
		return nil
	}
	txID := scr.TransactionID()
	if err := scr.Save(a.ctx, sess); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved transaction %s\n", txID)
	return nil
}

func (c *uploadCmd) edits() review.Edits {
	return review.Edits{
		Bank:         c.Bank,
		Date:         c.Date,
		Time:         c.Time,
		Amount:       c.Amount,
		DetectedText: c.Memo,
	}
}

type classifyCmd struct {
	Text []string `arg:"" help:"Slip text to classify."`
}

func (c *classifyCmd) Run(a *app) error {
	d := core.ResolveCategory(core.OcrResult{Text: strings.Join(c.Text, " ")})
	fmt.Fprintf(a.out, "%s %s (%s)\n", d.Tag.Emoji(), d.Tag.Label(), d.Source)
	return nil
}

// rangeFlags select the aggregation period. Year and month default to the
// current ones.
type rangeFlags struct {
	Range string `default:"all" enum:"all,month,year" help:"Aggregation range."`
	Year  int    `help:"Year for month and year ranges."`
	Month int    `help:"Month (1-12) for month ranges."`
}

func (f rangeFlags) query(now time.Time) (api.RangeQuery, error) {
	q := api.RangeQuery{Kind: api.RangeKind(f.Range), Year: f.Year, Month: f.Month}
	switch q.Kind {
	case api.RangeAll:
		q.Year, q.Month = 0, 0
	case api.RangeYear:
		q.Month = 0
		if q.Year == 0 {
			q.Year = now.Year()
		}
	case api.RangeMonth:
		if q.Year == 0 {
			q.Year = now.Year()
		}
		if q.Month == 0 {
			q.Month = int(now.Month())
		}
	}
	return q, q.Validate()
}

type dashboardCmd struct {
	View string `default:"all" enum:"all,month,year" help:"Dashboard view."`
}

func (c *dashboardCmd) Run(a *app) error {
	token, err := a.token()
	if err != nil {
		return err
	}
	d, err := a.api.Dashboard(a.ctx, token, api.RangeKind(c.View))
	if err != nil {
		return err
	}
	return a.printJSON(d)
}

type transactionsCmd struct {
	rangeFlags `embed:""`
	Bank       string `help:"Only this bank."`
	Page       int    `default:"1" help:"Page number."`
	PageSize   int    `name:"page-size" default:"20" help:"Rows per page."`
}

func (c *transactionsCmd) Run(a *app) error {
	rq, err := c.query(a.now())
	if err != nil {
		return err
	}
	token, err := a.token()
	if err != nil {
		return err
	}
	items, err := a.api.ListTransactions(a.ctx, token, api.TransactionQuery{
		Range: rq, Bank: c.Bank, Page: c.Page, PageSize: c.PageSize,
	})
	if err != nil {
		return err
	}
	return a.printJSON(items)
}

type statsCmd struct {
	rangeFlags `embed:""`
}

func (c *statsCmd) Run(a *app) error {
	rq, err := c.query(a.now())
	if err != nil {
		return err
	}
	token, err := a.token()
	if err != nil {
		return err
	}
	st, err := a.api.Stats(a.ctx, token, rq)
	if err != nil {
		return err
	}
	return a.printJSON(st)
}
