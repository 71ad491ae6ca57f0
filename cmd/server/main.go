package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/clientportal/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool             `help:"Enable debug mode." env:"PORTAL_DEBUG"`
		Version kong.VersionFlag `help:"Print version and exit."`
		Config  kong.ConfigFlag  `help:"Load flags from a YAML file."`

		Serve            commands.ServeCmd            `cmd:"" default:"withargs" help:"Start the portal and relay HTTP server"`
		RefreshStockNews commands.RefreshStockNewsCmd `cmd:"" help:"Refresh news for every stock pick"`
		SendNewsletter   commands.SendNewsletterCmd   `cmd:"" help:"Send a newsletter to approved members"`
		Migrate          commands.MigrateCmd          `cmd:"" help:"Apply database migrations"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("portal"),
		kong.Description("Client investment portal backend."),
		kong.Configuration(commands.YAMLLoader, "/etc/portal/config.yaml", "~/.portal.yaml"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
