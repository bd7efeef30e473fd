// Command slipctl drives the slip review flow and the read-only dashboards
// from a terminal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"slipdash/internal/cli"
)

// globals are shared by every command.
type globals struct {
	APIURL   string        `name:"api-url" env:"API_BASE_URL" default:"http://localhost:8000" help:"Expense backend base URL."`
	Timeout  time.Duration `env:"API_TIMEOUT" default:"30s" help:"Per-request timeout."`
	DB       string        `name:"db" env:"SQLITE_DB_PATH" default:"./data/slipdash.db" help:"SQLite file holding remembered credentials and saved reviews."`
	EncKey   string        `name:"enc-key" env:"CREDENTIALS_ENC_KEY" help:"Key sealing stored credentials (32+ chars)."`
	SignKey  string        `name:"sign-key" env:"CREDENTIALS_SIGN_KEY" help:"Key signing stored credentials (32+ chars)."`
	Profile  string        `default:"default" help:"Credential profile to use."`
	LogLevel string        `name:"log-level" env:"LOG_LEVEL" default:"warn" enum:"debug,info,warn,error" help:"Log level."`
}

type command struct {
	Globals globals `embed:""`

	Login        loginCmd        `cmd:"" help:"Log in to the backend."`
	Logout       logoutCmd       `cmd:"" help:"Forget the stored token."`
	Register     registerCmd     `cmd:"" help:"Create a backend account."`
	Upload       uploadCmd       `cmd:"" help:"Upload a slip, review it and optionally save it."`
	Classify     classifyCmd     `cmd:"" help:"Guess the category of a piece of slip text."`
	Dashboard    dashboardCmd    `cmd:"" help:"Show the dashboard."`
	Transactions transactionsCmd `cmd:"" help:"List transactions."`
	Stats        statsCmd        `cmd:"" help:"Show statistics."`
}

func main() {
	cli.LoadEnvFile()

	var cmd command
	kctx := kong.Parse(&cmd,
		kong.Name("slipctl"),
		kong.Description("Review bank transfer slips against the expense backend."),
		kong.UsageOnError())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd.Globals, os.Stdin, os.Stdout, os.Stderr)
	kctx.FatalIfErrorf(err)

	err = kctx.Run(a)
	if cerr := a.Close(); err == nil {
		err = cerr
	}
	kctx.FatalIfErrorf(err)
}
