package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/nikhilbhutani/payrollflow/cmd/payrollctl/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Migrate       commands.MigrateCmd       `cmd:"" help:"Apply database migrations"`
		CreateCompany commands.CreateCompanyCmd `cmd:"" help:"Create a company"`
		Fund          commands.FundCmd          `cmd:"" help:"Add funds to a company balance"`
		CreateUser    commands.CreateUserCmd    `cmd:"" help:"Create a login user"`
		APIKey        commands.APIKeyCmd        `cmd:"" name:"api-key" help:"Issue an API key for a user"`
		Token         commands.TokenCmd         `cmd:"" help:"Issue a JWT for a user"`
		Generate      commands.GenerateCmd      `cmd:"" help:"Create monthly payrolls for active employees"`
		Watch         commands.WatchCmd         `cmd:"" help:"Stream payroll status events"`
		Debug         bool                      `help:"Enable debug logging."`
		Version       kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("payrollctl"),
		kong.Description("Operator tooling for payrollflow."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	level := slog.LevelWarn
	if cli.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
