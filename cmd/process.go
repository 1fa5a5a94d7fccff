package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/ctrlnotify/internal/events"
	"github.com/CosmoTheDev/ctrlnotify/models"
)

var (
	processEventType string
	processData      string
	processEventID   string
	processFile      string
	processScheduled bool
	processQuery     string
	processForce     bool
	processPublish   bool
	processJSON      bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Dispatch events through the registered notifications",
	Long: `Processes events one-shot and prints one result per matching configuration.

Events can come from flags, a YAML/JSON batch file, or the scheduled SQL
queries declared in the config:

  ctrlnotify process --event-type user_signup --data '{"user_email":"a@x.com","user_name":"Alice"}'
  ctrlnotify process --file events.yaml
  ctrlnotify process --scheduled --query daily_stats --force

With --publish the events are written to the configured Kafka topic instead,
for a running gateway to consume.`,
	RunE: runProcess,
}

func init() {
	f := processCmd.Flags()
	f.StringVar(&processEventType, "event-type", "", "event type to dispatch")
	f.StringVar(&processData, "data", "{}", "event data as a JSON object")
	f.StringVar(&processEventID, "event-id", "", "event id (default: random UUID)")
	f.StringVar(&processFile, "file", "", "YAML or JSON file with a list of events")
	f.BoolVar(&processScheduled, "scheduled", false, "run the scheduled queries that are due")
	f.StringVar(&processQuery, "query", "", "with --scheduled, run only this query")
	f.BoolVar(&processForce, "force", false, "with --scheduled, run queries even when not due")
	f.BoolVar(&processPublish, "publish", false, "publish events to Kafka instead of dispatching")
	f.BoolVar(&processJSON, "json", false, "print results as JSON")
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := loadServices(ctx, processScheduled)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Scheduled sources may return events alongside an error from a
	// failing query; those events are still dispatched.
	evts, collectErr := collectEvents(ctx, rt)
	if len(evts) == 0 && collectErr != nil {
		return collectErr
	}
	if err := dispatchEvents(ctx, rt, evts); err != nil {
		return errors.Join(err, collectErr)
	}
	return collectErr
}

// dispatchEvents publishes or processes evts and prints the outcome.
func dispatchEvents(ctx context.Context, rt *services, evts []models.NotificationEvent) error {
	if len(evts) == 0 {
		if processJSON {
			fmt.Println("[]")
			return nil
		}
		fmt.Println(dimStyle.Render("No events to process."))
		return nil
	}

	if processPublish {
		return publishEvents(ctx, rt, evts)
	}

	results := rt.registry.ProcessEvents(ctx, evts)
	if processJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	printResults(evts, results)
	return nil
}

func collectEvents(ctx context.Context, rt *services) ([]models.NotificationEvent, error) {
	if processScheduled {
		if rt.scheduled == nil {
			return nil, fmt.Errorf("no scheduled queries configured")
		}
		return rt.scheduled.Events(ctx, events.Params{
			EventType: processEventType,
			QueryName: processQuery,
			Force:     processForce,
		})
	}

	buf := events.NewRealtime()
	if processFile != "" {
		n, err := buf.LoadFile(processFile)
		if err != nil {
			return nil, err
		}
		fmt.Fprintln(os.Stderr, dimStyle.Render(fmt.Sprintf("Loaded %d events from %s", n, processFile)))
	}
	if processEventType != "" && processFile == "" {
		var data map[string]any
		if err := json.Unmarshal([]byte(processData), &data); err != nil {
			return nil, fmt.Errorf("--data must be a JSON object: %w", err)
		}
		buf.Add(processEventType, data, processEventID)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("nothing to process: pass --event-type, --file or --scheduled")
	}

	var p events.Params
	p.Clear = true
	if processFile != "" {
		p.EventType = processEventType
	}
	return buf.Events(ctx, p)
}

func publishEvents(ctx context.Context, rt *services, evts []models.NotificationEvent) error {
	pub, err := events.NewPublisher(rt.cfg.Kafka)
	if err != nil {
		return err
	}
	defer pub.Close()
	if err := pub.Publish(ctx, evts); err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("Published %d events to %s", len(evts), rt.cfg.Kafka.Topic)))
	return nil
}

func printResults(evts []models.NotificationEvent, results []models.NotificationResult) {
	byEvent := make(map[string][]models.NotificationResult, len(evts))
	for _, r := range results {
		byEvent[r.EventID] = append(byEvent[r.EventID], r)
	}

	var sent, suppressed, failed int
	for _, e := range evts {
		fmt.Println(headerStyle.Render(fmt.Sprintf("%s  %s", e.EventType, dimStyle.Render(e.EventID))))
		rs := byEvent[e.EventID]
		if len(rs) == 0 {
			fmt.Println(dimStyle.Render("  no notifications registered for this event type"))
		}
		for _, r := range rs {
			fmt.Println("  " + formatResult(r))
			switch {
			case r.Success:
				sent++
			case r.Suppressed():
				suppressed++
			default:
				failed++
			}
		}
	}
	fmt.Println()
	fmt.Printf("%d sent, %d suppressed, %d failed\n", sent, suppressed, failed)
}
