package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/wolfeidau/clientportal/internal/logger"
	"github.com/wolfeidau/clientportal/internal/relay"
	postgresstore "github.com/wolfeidau/clientportal/internal/store/postgres"
)

// RefreshStockNewsCmd runs one stock news refresh outside the HTTP relay,
// for use from a scheduler.
type RefreshStockNewsCmd struct {
	Store    StoreFlags    `embed:""`
	Upstream UpstreamFlags `embed:""`
}

func (c *RefreshStockNewsCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	stores, err := c.Store.open(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	answerer, err := c.Upstream.answerer(ctx)
	if err != nil {
		return err
	}

	count, err := relay.NewStockNewsRefresher(answerer, stores.stocks).Refresh(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh stock news: %w", err)
	}

	log.Info().Int("count", count).Msg("Stock news refreshed")
	return nil
}

// SendNewsletterCmd mails a newsletter to every approved profile.
type SendNewsletterCmd struct {
	Subject      string `help:"email subject" required:""`
	HTMLFile     string `help:"path to the HTML body" required:"" type:"existingfile"`
	NewsletterID string `help:"newsletter row to mark as sent" default:""`

	Store StoreFlags `embed:""`
	Email EmailFlags `embed:"" prefix:"email-"`
}

func (c *SendNewsletterCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	body, err := os.ReadFile(c.HTMLFile)
	if err != nil {
		return fmt.Errorf("failed to read newsletter body: %w", err)
	}

	newsletter := &relay.Newsletter{Subject: c.Subject, HTML: string(body)}
	if c.NewsletterID != "" {
		id, err := uuid.Parse(c.NewsletterID)
		if err != nil {
			return fmt.Errorf("invalid newsletter id: %w", err)
		}
		newsletter.NewsletterID = &id
	}

	stores, err := c.Store.open(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	result, err := c.Email.sender(stores).Send(ctx, newsletter)
	if err != nil {
		return fmt.Errorf("failed to send newsletter: %w", err)
	}

	log.Info().Int("sent", result.Sent).Int("total", result.Total).Msg("Newsletter sent")
	return nil
}

// MigrateCmd applies the database schema.
type MigrateCmd struct {
	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	pool, err := c.Postgres.pool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgresstore.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info().Msg("Database migrations applied")
	return nil
}
