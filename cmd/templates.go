package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/ctrlnotify/internal/config"
	"github.com/CosmoTheDev/ctrlnotify/internal/templates"
)

var (
	renderData string
	renderVars []string
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List, inspect and render message templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List user and bundled templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := loadEngine()
		if err != nil {
			return err
		}
		list, err := engine.List()
		if err != nil {
			return err
		}
		fmt.Printf("%-28s %-8s %s\n", "NAME", "ORIGIN", "DESCRIPTION")
		for _, t := range list {
			origin := "user"
			if t.Bundled {
				origin = "bundled"
			}
			fmt.Printf("%-28s %-8s %s\n", t.Name, origin, t.Description)
		}
		return nil
	},
}

var templatesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a template with its variables and channel options",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := loadEngine()
		if err != nil {
			return err
		}
		t, err := engine.Load(args[0])
		if err != nil {
			return err
		}
		vars, err := engine.Variables(args[0])
		if err != nil {
			return err
		}

		fmt.Println(headerStyle.Render(t.Name))
		if t.Description != "" {
			fmt.Println(dimStyle.Render(t.Description))
		}
		fmt.Printf("Variables : %s\n", strings.Join(vars, ", "))
		if opts := engine.Options(args[0]); len(opts) > 0 {
			keys := make([]string, 0, len(opts))
			for k := range opts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("Option    : %s = %v\n", k, opts[k])
			}
		}
		fmt.Println()
		fmt.Println(t.Body)
		return nil
	},
}

var templatesRenderCmd = &cobra.Command{
	Use:   "render <name>",
	Short: "Render a template with sample data",
	Long: `Renders a template the way the registry would for an event.

  ctrlnotify templates render welcome_email.txt --var user_name=Alice --var user_email=a@x.com
  ctrlnotify templates render daily_stats.txt --data '{"date":"2026-03-01","total_users":10}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := loadEngine()
		if err != nil {
			return err
		}
		vars := map[string]any{}
		if renderData != "" {
			if err := json.Unmarshal([]byte(renderData), &vars); err != nil {
				return fmt.Errorf("--data must be a JSON object: %w", err)
			}
		}
		for _, kv := range renderVars {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("--var %q: expected key=value", kv)
			}
			vars[k] = v
		}
		out, err := engine.Render(args[0], vars)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var templatesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Copy the bundled templates into the template directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := loadEngine()
		if err != nil {
			return err
		}
		if err := engine.Init(); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("Templates ready in " + engine.Dir()))
		return nil
	},
}

func init() {
	templatesRenderCmd.Flags().StringVar(&renderData, "data", "", "template variables as a JSON object")
	templatesRenderCmd.Flags().StringArrayVar(&renderVars, "var", nil, "template variable as key=value (repeatable)")
	templatesCmd.AddCommand(templatesListCmd, templatesShowCmd, templatesRenderCmd, templatesInitCmd)
}

func loadEngine() (*templates.Engine, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return templates.NewEngine(cfg.Templates.Dir), nil
}
