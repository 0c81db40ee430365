package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/slack-go/slack"

	"feedbacktriage/internal/catalog"
	"feedbacktriage/internal/config"
	"feedbacktriage/internal/domain"
	"feedbacktriage/internal/httpx"
	"feedbacktriage/internal/identity"
	"feedbacktriage/internal/integrations/linear"
	"feedbacktriage/internal/integrations/llm"
	slackbot "feedbacktriage/internal/integrations/slack"
	"feedbacktriage/internal/storage/sqlite"
	"feedbacktriage/internal/triage"
)

// pipeline is everything one triage run needs, built from config.
type pipeline struct {
	runner     *triage.Runner
	classifier *llm.Client
	notifier   *slackbot.Notifier
	db         *sql.DB
}

func loadNormalizer(cfg config.Config) (*identity.Normalizer, error) {
	tables, err := identity.LoadTables(cfg.IdentityTablesPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		log.Printf("WARNING: identity tables not found at %s; using built-in tables", cfg.IdentityTablesPath)
		tables = identity.DefaultTables()
	}
	log.Printf("identity tables loaded variants=%d overrides=%d", len(tables.NameVariants), len(tables.Overrides))
	return identity.NewNormalizer(tables), nil
}

func openStore(cfg config.Config) (*sql.DB, *sqlite.Store, error) {
	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("init database %s: %w", cfg.DBPath, err)
	}
	return db, sqlite.NewStore(db), nil
}

func newPipeline(cfg config.Config, dryRun bool) (*pipeline, error) {
	if err := cfg.ValidateForRun(); err != nil {
		return nil, err
	}
	timeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	httpClient := httpx.ExternalHTTPClient()

	cat, err := catalog.LoadFile(cfg.TopicsPath)
	if err != nil {
		return nil, err
	}
	normalizer, err := loadNormalizer(cfg)
	if err != nil {
		return nil, err
	}

	classifier, err := llm.NewClient(llm.Settings{
		Provider:        cfg.LLMProvider,
		Model:           cfg.LLMModel,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIURL:       cfg.OpenAIAPIURL,
		MaxTokens:       cfg.LLMMaxTokens,
		HTTPClient:      httpClient,
	})
	if err != nil {
		return nil, err
	}
	tracker := linear.NewClient(cfg.LinearAPIKey, cfg.LinearAPIURL, cfg.LinearTeamKey, httpClient)

	db, store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	p := &pipeline{
		runner: triage.NewRunner(tracker, classifier, cat, normalizer, triage.Options{
			DryRun:           dryRun,
			NeedsReviewLabel: cfg.NeedsReviewLabel,
			FallbackTopic:    cfg.FallbackTopic,
		}).WithRecorder(store),
		classifier: classifier,
		db:         db,
	}
	if cfg.SlackConfigured() {
		p.notifier = slackbot.NewNotifier(slack.New(cfg.SlackBotToken), cfg.ReportChannelID, cfg.SlackMentionOwners)
	}
	log.Printf("pipeline ready team=%s provider=%s model=%s dry_run=%v slack=%v http_timeout=%s",
		cfg.LinearTeamKey, classifier.Provider(), classifier.Model(), dryRun, p.notifier != nil, timeout)
	return p, nil
}

func (p *pipeline) Close() {
	if p.db != nil {
		_ = p.db.Close()
	}
}

// run triages and then posts the summary. A failed post does not fail the run.
func (p *pipeline) run(ctx context.Context, identifier string) (domain.RunRecord, error) {
	record, err := p.runner.Run(ctx, identifier)
	if err != nil {
		return domain.RunRecord{}, err
	}
	if p.notifier != nil {
		_ = p.notifier.NotifyRun(ctx, record)
	}
	u := p.classifier.Usage()
	log.Printf("llm usage requests=%d tokens_in=%d tokens_out=%d", u.Requests, u.InputTokens, u.OutputTokens)
	return record, nil
}
