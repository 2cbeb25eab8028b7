package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/portfolio-ai/backend/internal/config"
	"github.com/portfolio-ai/backend/internal/model/persona"
	"github.com/portfolio-ai/backend/internal/service/ai"
	"github.com/portfolio-ai/backend/internal/service/resolver"
	"github.com/portfolio-ai/backend/internal/service/rules"
	"github.com/portfolio-ai/backend/internal/telemetry"
)

var (
	timeoutFlag  time.Duration
	rulesFlag    string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:           "chatprobe",
	Short:         "Exercise the chat resolver from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Resolve one message and print the reply with its source",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe every configured remote strategy",
	Args:  cobra.NoArgs,
	RunE:  runProbe,
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Work with fallback rule files",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check <file...>",
	Short: "Validate fallback rule files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRulesCheck,
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 0, "per-attempt timeout (defaults to CHAT_TIMEOUT)")
	rootCmd.PersistentFlags().StringVar(&rulesFlag, "rules", "", "fallback rule file (defaults to FALLBACK_RULES_PATH or built-in rules)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "warn", "log level written to stderr")

	rulesCmd.AddCommand(rulesCheckCmd)
	rootCmd.AddCommand(askCmd, probeCmd, rulesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildResolver(ctx context.Context) (*resolver.Resolver, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if timeoutFlag > 0 {
		cfg.Chat.Timeout = timeoutFlag
	}
	if rulesFlag != "" {
		cfg.Chat.RulesPath = rulesFlag
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: telemetry.ParseLevel(logLevelFlag),
	}))

	fallback := rules.Default()
	if cfg.Chat.RulesPath != "" {
		if fallback, err = rules.Load(cfg.Chat.RulesPath); err != nil {
			return nil, err
		}
	}

	strategies, err := ai.NewStrategies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	systemContext, err := personaContext(persona.NewMemoryStore(persona.Seed()), cfg.Chat.Persona)
	if err != nil {
		return nil, err
	}
	return resolver.New(resolver.Config{
		Strategies:       strategies,
		Timeout:          cfg.Chat.Timeout,
		SystemContext:    systemContext,
		Rules:            fallback,
		HistoryLimit:     cfg.Chat.HistoryLimit,
		FailureThreshold: cfg.Chat.FailureThreshold,
		Cooldown:         cfg.Chat.Cooldown,
	}, resolver.WithLogger(logger))
}

// personaContext builds the system context for id, falling back to the
// default persona the same way the API server does.
func personaContext(store persona.Store, id string) (string, error) {
	active, ok := persona.Lookup(store, id)
	if !ok {
		return "", fmt.Errorf("no assistant persona available for %q", id)
	}
	return ai.BuildSystemContext(active), nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	res, err := buildResolver(cmd.Context())
	if err != nil {
		return err
	}

	out := res.ResolveDetailed(cmd.Context(), strings.Join(args, " "), nil)
	source := string(out.Source)
	if out.Strategy != "" {
		source += "/" + out.Strategy
	} else if out.Rule != "" {
		source += "/" + out.Rule
	}

	fmt.Fprintf(cmd.OutOrStdout(), "[%s, %d attempt(s), %s]\n%s\n", source, out.Attempts, out.Latency.Round(time.Millisecond), out.Text)
	return nil
}

func runProbe(cmd *cobra.Command, _ []string) error {
	res, err := buildResolver(cmd.Context())
	if err != nil {
		return err
	}

	results := res.Probe(cmd.Context())
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no probeable strategies configured")
	}
	for _, r := range results {
		status := "ok"
		if !r.Reachable {
			status = "unreachable: " + r.Error
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", r.Strategy, status)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", res.Status())
	return nil
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		set, err := rules.Load(path)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%d rules)\n", path, set.Len())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d rule files invalid", failed, len(args))
	}
	return nil
}
