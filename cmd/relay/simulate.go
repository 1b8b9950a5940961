package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"warelay/internal/config"
	"warelay/internal/domain"
	"warelay/internal/logging"
	"warelay/internal/service"
	"warelay/internal/session"
	"warelay/internal/tenants"
)

var simulateOpts struct {
	tenant string
	from   string
	texts  []string
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Print the actions an automation would produce",
	Long: "Runs the automation registered for --tenant against one or more inbound texts.\n" +
		"Nothing is sent or stored; session state carries over between texts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadRelay()
		logging.Init("relay-simulate", cfg.LogFormat, "warn")
		return simulate(cmd.OutOrStdout(), cfg, simulateOpts.tenant, simulateOpts.from, simulateOpts.texts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOpts.tenant, "tenant", "", "business phone_number_id")
	simulateCmd.Flags().StringVar(&simulateOpts.from, "from", "5500000000000", "sender wa_id")
	simulateCmd.Flags().StringArrayVar(&simulateOpts.texts, "text", nil, "inbound text, repeatable")
	_ = simulateCmd.MarkFlagRequired("text")
	rootCmd.AddCommand(simulateCmd)
}

type simulateStep struct {
	Text       string          `json:"text"`
	Automation string          `json:"automation"`
	State      session.State   `json:"state"`
	Actions    []domain.Action `json:"actions"`
}

func simulate(w io.Writer, cfg config.RelayConfig, tenant, from string, texts []string) error {
	registry, err := tenants.NewRegistry(
		tenants.Builtins(tenants.Menu{Greeting: cfg.MenuGreeting, WorkingHours: cfg.MenuWorkingHours}),
		cfg.TenantRegistry,
		cfg.TenantRegistryJSON,
	)
	if err != nil {
		return err
	}
	relay := &service.Relay{Sessions: session.NewStore(nil), Registry: registry}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	for _, text := range texts {
		actions, name, err := relay.Simulate(tenant, []domain.Event{domain.TextEvent{From: from, Text: text}})
		if err != nil {
			return fmt.Errorf("simulate %q: %w", text, err)
		}
		step := simulateStep{Text: text, Automation: name, Actions: actions}
		if sess, ok := relay.Sessions.Get(tenant, from); ok {
			step.State = sess.State
		}
		if err := enc.Encode(step); err != nil {
			return err
		}
	}
	return nil
}
