package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
	"github.com/CosmoTheDev/ctrlnotify/internal/database"
	"github.com/CosmoTheDev/ctrlnotify/internal/dedup"
	"github.com/CosmoTheDev/ctrlnotify/internal/notify"
	"github.com/CosmoTheDev/ctrlnotify/internal/registry"
	"github.com/CosmoTheDev/ctrlnotify/internal/templates"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify channels, templates, storage and brokers",
	Long: `Checks that the config loads, every configured channel is usable, every
notification references an existing template and channel, the database can be
reached, and Kafka brokers answer.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	allOK := true

	fmt.Println("=== ctrlnotify doctor ===")
	fmt.Println()

	fmt.Print("Config file .............. ")
	p, _ := config.ConfigPath(cfgFile)
	if _, err := os.Stat(p); err != nil {
		fmt.Println("MISSING (using defaults — run 'ctrlnotify onboard')")
	} else {
		fmt.Printf("OK (%s)\n", p)
	}

	// Templates
	engine := templates.NewEngine(cfg.Templates.Dir)
	fmt.Print("Templates ................ ")
	list, err := engine.List()
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		user := 0
		for _, t := range list {
			if !t.Bundled {
				user++
			}
		}
		fmt.Printf("OK (%d available, %d from %s)\n", len(list), user, cfg.Templates.Dir)
	}

	// Channels
	fmt.Println()
	fmt.Println("Channels:")
	channels := notify.Build(cfg.Channels, notify.Options{})
	fmt.Printf("  %-14s ... ", "email")
	if _, ok := channels.Get("email"); !ok {
		fmt.Println("DISABLED (set channels.email.output_dir)")
	} else if err := checkWritable(cfg.Channels.Email.OutputDir); err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		fmt.Printf("OK (%s)\n", cfg.Channels.Email.OutputDir)
	}
	fmt.Printf("  %-14s ... ", "slack")
	if _, ok := channels.Get("slack"); ok {
		fmt.Printf("OK (console, as %s)\n", cfg.Channels.Slack.Username)
	} else {
		fmt.Println("DISABLED")
	}
	fmt.Printf("  %-14s ... ", "webhook")
	switch {
	case cfg.Channels.Webhook.URL == "":
		fmt.Println("DISABLED (set channels.webhook.url)")
	case cfg.Channels.Webhook.Secret == "":
		fmt.Printf("WARN (%s, unsigned: no secret)\n", cfg.Channels.Webhook.URL)
	default:
		fmt.Printf("OK (%s, signed)\n", cfg.Channels.Webhook.URL)
	}

	// Registry
	fmt.Println()
	fmt.Print("Dedup policies ........... ")
	policies, err := dedup.Build(cfg.Dedup)
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		fmt.Printf("OK (window %s, bucket %s)\n", cfg.Dedup.Window, cfg.Dedup.Bucket)
	}
	fmt.Print("Notifications ............ ")
	if err == nil {
		reg := registry.New(engine, channels, policies)
		if err := reg.RegisterNotifications(cfg.Notifications...); err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		} else if len(cfg.Notifications) == 0 {
			fmt.Println("WARN (none registered — run 'ctrlnotify onboard')")
		} else {
			fmt.Printf("OK (%d configs)\n", len(cfg.Notifications))
		}
	} else {
		fmt.Println("SKIPPED")
	}

	// Storage
	fmt.Print("Database ................. ")
	if len(cfg.Scheduled) == 0 {
		fmt.Println("not needed (no scheduled queries)")
	} else {
		db, err := database.New(cfg.Database)
		if err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		} else {
			if err := db.Ping(ctx); err != nil {
				fmt.Printf("FAIL (%s)\n", err)
				allOK = false
			} else {
				fmt.Printf("OK (%s, %d scheduled queries)\n", db.Driver(), len(cfg.Scheduled))
			}
			db.Close()
		}
	}

	// Kafka
	fmt.Print("Kafka .................... ")
	if len(cfg.Kafka.Brokers) == 0 {
		fmt.Println("disabled")
	} else {
		dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		conn, err := kafka.DialContext(dialCtx, "tcp", cfg.Kafka.Brokers[0])
		cancel()
		if err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		} else {
			_ = conn.Close()
			fmt.Printf("OK (%s, topic %s)\n", cfg.Kafka.Brokers[0], cfg.Kafka.Topic)
		}
	}

	fmt.Println()
	if allOK {
		fmt.Println(successStyle.Render("All checks passed — ctrlnotify is ready!"))
	} else {
		fmt.Println(warnStyle.Render("Some checks failed — run 'ctrlnotify onboard' or edit the config to fix."))
	}

	return nil
}

// checkWritable creates dir if needed and verifies a file can be written there.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(filepath.Clean(name))
}
