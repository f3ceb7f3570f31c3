// Command traveops runs the life admin assistant as an interactive
// terminal chat over a durable conversation store.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/traveops/internal/config"
	"github.com/randalmurphal/traveops/internal/genai"
	"github.com/randalmurphal/traveops/internal/orchestrator"
	"github.com/randalmurphal/traveops/internal/tools"
	"github.com/randalmurphal/traveops/pkg/turnflow/session"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath     string
		phone          string
		conversationID string
	)

	cmd := &cobra.Command{
		Use:   "traveops",
		Short: "Conversational life admin assistant",
		Long: `traveops is a chat assistant for travel planning, WhatsApp reminders
and creative briefs. Travel plans pause for your approval before booking;
reminder notifications pause for confirmation before sending. Answer the
question in the next message to continue.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return runREPL(cmd.Context(), a, replOptions{
				Phone:          phone,
				ConversationID: conversationID,
			})
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&phone, "phone", "", "WhatsApp number for booking confirmations and reminders")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "continue an existing conversation")

	cmd.AddCommand(newStatusCmd(&configPath), newVersionCmd())
	return cmd
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <conversation-id>",
		Short: "Show where a conversation stands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.orc.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "traveops "+version)
		},
	}
}

type app struct {
	cfg    config.Config
	orc    *orchestrator.Orchestrator
	store  session.Store
	logger *slog.Logger
}

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log.Level)

	store, err := newStore(cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	llm, err := genai.NewClient(
		genai.WithAPIKey(cfg.LLM.APIKey),
		genai.WithBaseURL(cfg.LLM.BaseURL),
		genai.WithModel(cfg.LLM.Model),
		genai.WithTemperature(cfg.LLM.Temperature),
		genai.WithMaxTokens(cfg.LLM.MaxTokens),
		genai.WithRateLimit(cfg.LLM.RequestsPerMinute),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	orc, err := orchestrator.New(cfg, llm, newToolRegistry(cfg, logger), store,
		orchestrator.WithLogger(logger))
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{cfg: cfg, orc: orc, store: store, logger: logger}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing session store", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func newStore(cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return session.NewSQLiteStore(cfg.DSN)
	case config.BackendPostgres:
		return session.NewPostgresStore(cfg.DSN)
	case config.BackendRedis:
		return session.NewRedisStore(cfg.DSN, session.WithRedisTTL(time.Duration(cfg.TTL)))
	default:
		return session.NewMemoryStore(), nil
	}
}

// newToolRegistry wires the research tools and the notifier. Without
// Twilio credentials notifications are recorded in memory, not sent.
func newToolRegistry(cfg config.Config, logger *slog.Logger) *tools.Registry {
	reg := tools.NewRegistry()
	provider := tools.NewStaticProvider(cfg.Tools)
	reg.RegisterWeather(provider)
	reg.RegisterFlights(provider)
	reg.RegisterHotels(provider)

	nc := cfg.Notify
	if nc.TwilioAccountSID != "" && nc.TwilioAuthToken != "" && nc.FromNumber != "" {
		notifier, err := tools.NewTwilioNotifier(nc.TwilioAccountSID, nc.TwilioAuthToken, nc.FromNumber)
		if err == nil {
			reg.RegisterNotifier(notifier)
			return reg
		}
		logger.Warn("twilio notifier unavailable, recording notifications instead", "error", err)
	}
	reg.RegisterNotifier(tools.NewMockSender())
	return reg
}
