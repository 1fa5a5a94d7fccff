package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
	"github.com/CosmoTheDev/ctrlnotify/internal/dedup"
	"github.com/CosmoTheDev/ctrlnotify/internal/templates"
	"github.com/CosmoTheDev/ctrlnotify/models"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Interactive setup wizard for ctrlnotify",
	Long: `Walks you through configuring ctrlnotify:
  - Template directory (bundled templates are copied in)
  - Channels: email outbox, Slack bot identity, optional webhook
  - Deduplication window
  - A first notification binding an event type to a channel and template

Everything is written to ~/.ctrlnotify/config.json and can be edited later.`,
	RunE: runOnboard,
}

func runOnboard(cmd *cobra.Command, args []string) error {
	fmt.Println()
	fmt.Println(headerStyle.Render("  ctrlnotify — event-driven notification dispatcher"))
	fmt.Println(dimStyle.Render("  Turn application events into emails, Slack posts and webhooks.\n"))

	// Load existing config or start fresh.
	cfg, err := config.Load(cfgFile)
	if err != nil {
		cfg = &config.Config{}
	}

	if err := config.EnsureDir(); err != nil {
		return fmt.Errorf("creating ctrlnotify directory: %w", err)
	}

	// --- Step 1: Templates ---
	fmt.Println(headerStyle.Render("  Step 1/4 · Templates"))
	templatesDir := cfg.Templates.Dir
	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Template directory").
			Description("Your templates live here; bundled defaults are copied in and fill any gaps.").
			Value(&templatesDir).
			Validate(notBlank("template directory")),
	)).Run(); err != nil {
		return err
	}
	cfg.Templates.Dir = strings.TrimSpace(templatesDir)
	engine := templates.NewEngine(cfg.Templates.Dir)
	if err := engine.Init(); err != nil {
		fmt.Println(warnStyle.Render("  Could not copy bundled templates: " + err.Error()))
	} else {
		fmt.Println(successStyle.Render("  ✓ Templates ready in " + cfg.Templates.Dir))
	}

	// --- Step 2: Channels ---
	fmt.Println(headerStyle.Render("  Step 2/4 · Channels"))
	fmt.Println(dimStyle.Render("  Email is written to an outbox directory, Slack posts go to the console,"))
	fmt.Println(dimStyle.Render("  and the webhook channel POSTs signed JSON to a URL of your choice.\n"))

	email := cfg.Channels.Email
	slack := cfg.Channels.Slack
	webhook := cfg.Channels.Webhook
	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Email outbox directory").Value(&email.OutputDir),
			huh.NewInput().Title("Email sender address").Value(&email.From),
			huh.NewInput().Title("Default email subject").Value(&email.Subject),
		),
		huh.NewGroup(
			huh.NewInput().Title("Slack bot username").Value(&slack.Username),
			huh.NewInput().Title("Slack bot icon").Placeholder(":bell:").Value(&slack.IconEmoji),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Webhook URL (leave blank to disable)").
				Placeholder("https://example.com/hooks/notify").
				Value(&webhook.URL),
			huh.NewInput().
				Title("Webhook signing secret (optional)").
				Description("Requests carry an HMAC-SHA256 signature header when set.").
				EchoMode(huh.EchoModePassword).
				Value(&webhook.Secret),
		),
	).Run(); err != nil {
		return err
	}
	cfg.Channels.Email = email
	cfg.Channels.Slack = slack
	cfg.Channels.Webhook = webhook

	// --- Step 3: Deduplication ---
	fmt.Println(headerStyle.Render("  Step 3/4 · Deduplication"))
	window := cfg.Dedup.Window
	if window == "" {
		window = "1h"
	}
	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Duplicate suppression window").
			Description("Identical messages to the same recipient are not resent within this window (Go duration).").
			Value(&window).
			Validate(func(s string) error {
				d, err := time.ParseDuration(strings.TrimSpace(s))
				if err != nil || d <= 0 {
					return fmt.Errorf("enter a positive duration such as 30m or 1h")
				}
				return nil
			}),
	)).Run(); err != nil {
		return err
	}
	cfg.Dedup.Window = strings.TrimSpace(window)
	if cfg.Dedup.Bucket == "" {
		cfg.Dedup.Bucket = cfg.Dedup.Window
	}

	// --- Step 4: First notification ---
	fmt.Println(headerStyle.Render("  Step 4/4 · First notification"))
	addFirst := len(cfg.Notifications) == 0
	if err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Add a notification configuration now?").
			Value(&addFirst),
	)).Run(); err != nil {
		return err
	}
	if addFirst {
		nc, err := promptNotification(cfg, engine)
		if err != nil {
			return err
		}
		cfg.Notifications = append(cfg.Notifications, nc)
	}

	if err := config.Save(cfg, cfgFile); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	p, _ := config.ConfigPath(cfgFile)
	fmt.Println()
	fmt.Println(successStyle.Render("  ✓ Configuration saved to " + p))
	fmt.Println(dimStyle.Render("  Next: 'ctrlnotify doctor' to verify, then 'ctrlnotify serve' or 'ctrlnotify process'."))
	return nil
}

func promptNotification(cfg *config.Config, engine *templates.Engine) (models.NotificationConfig, error) {
	nc := models.NotificationConfig{
		EventType:           "user_signup",
		Channel:             "email",
		Template:            "welcome_email.txt",
		RecipientField:      "user_email",
		DeduplicationPolicy: dedup.ContentBased,
	}

	channelOpts := []huh.Option[string]{huh.NewOption("Email", "email"), huh.NewOption("Slack", "slack")}
	if cfg.Channels.Webhook.URL != "" {
		channelOpts = append(channelOpts, huh.NewOption("Webhook", "webhook"))
	}

	var templateOpts []huh.Option[string]
	if list, err := engine.List(); err == nil {
		for _, t := range list {
			label := t.Name
			if t.Description != "" {
				label += " — " + t.Description
			}
			templateOpts = append(templateOpts, huh.NewOption(label, t.Name))
		}
	}
	if len(templateOpts) == 0 {
		templateOpts = []huh.Option[string]{huh.NewOption(nc.Template, nc.Template)}
	}

	policyOpts := []huh.Option[string]{huh.NewOption("none", "")}
	for _, name := range dedup.Names() {
		policyOpts = append(policyOpts, huh.NewOption(name, name))
	}

	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Event type").Value(&nc.EventType).Validate(notBlank("event type")),
		huh.NewSelect[string]().Title("Channel").Options(channelOpts...).Value(&nc.Channel),
		huh.NewSelect[string]().Title("Template").Options(templateOpts...).Value(&nc.Template),
		huh.NewInput().
			Title("Recipient field").
			Description("Key in the event data that holds the address, e.g. user_email or slack_channel.").
			Value(&nc.RecipientField).
			Validate(notBlank("recipient field")),
		huh.NewSelect[string]().Title("Deduplication policy").Options(policyOpts...).Value(&nc.DeduplicationPolicy),
	)).Run()
	if err != nil {
		return nc, err
	}
	nc.EventType = strings.TrimSpace(nc.EventType)
	nc.RecipientField = strings.TrimSpace(nc.RecipientField)
	nc.Template = filepath.ToSlash(nc.Template)
	return nc, nil
}

func notBlank(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}
