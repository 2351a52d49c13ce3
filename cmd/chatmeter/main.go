package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zen-systems/chatmeter/pkg/adapter"
	"github.com/zen-systems/chatmeter/pkg/agent"
	"github.com/zen-systems/chatmeter/pkg/chat"
	"github.com/zen-systems/chatmeter/pkg/config"
	"github.com/zen-systems/chatmeter/pkg/credit"
	"github.com/zen-systems/chatmeter/pkg/router"
	"github.com/zen-systems/chatmeter/pkg/schema"
	"github.com/zen-systems/chatmeter/pkg/storage/sqlite"
	"github.com/zen-systems/chatmeter/pkg/usage"
)

var catalogFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatmeter",
		Short: "Metered multi-provider chat orchestration",
		Long: `Chatmeter routes chat requests to LLM providers behind a unified
	surface while enforcing credit metering: every exchange costs credits,
	retries are deduplicated by idempotency key, and every token consumed
	is attributable to a usage record.`,
	}

	rootCmd.PersistentFlags().StringVar(&catalogFile, "catalog", "", "path to model catalog file")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(creditsCmd())
	rootCmd.AddCommand(usageCmd())
	rootCmd.AddCommand(agentCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env holds the wired application services.
type env struct {
	cfg      *config.Config
	store    *sqlite.Store
	router   *router.Router
	ledger   *credit.Ledger
	recorder *usage.Recorder
	pricer   *usage.Pricer
	chat     *chat.Service
}

func buildEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := sqlite.Open(cfg.Settings.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	adapters, err := createAdapters(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create adapters: %w", err)
	}

	rt := router.New(adapters, cfg.Catalog,
		router.WithTimeout(cfg.Settings.ProviderTimeout),
		router.WithRateLimit(cfg.Settings.ProviderRPS, cfg.Settings.ProviderBurst),
	)
	ledger := credit.NewLedger(store)
	recorder := usage.NewRecorder(store)
	pricer := usage.NewPricer(cfg.Catalog)

	return &env{
		cfg:      cfg,
		store:    store,
		router:   rt,
		ledger:   ledger,
		recorder: recorder,
		pricer:   pricer,
		chat: chat.NewService(store, rt, ledger, recorder, pricer,
			chat.WithStreamChunkBytes(cfg.Settings.StreamChunkBytes)),
	}, nil
}

func (e *env) close() {
	_ = e.store.Close()
}

func chatCmd() *cobra.Command {
	var userFlag string
	var conversationFlag string
	var providerFlag string
	var modelFlag string
	var keyFlag string
	var maxTokens int
	var streamFlag bool

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one chat turn through the metering engine",
		Long: `Sends a message as the given user. The turn is billed in credits
	at the actual token cost reported by the provider; pass --key to make
	retries idempotent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv()
			if err != nil {
				return err
			}
			defer e.close()

			req := chat.Request{
				Content:        args[0],
				ConversationID: conversationFlag,
				Provider:       providerFlag,
				Model:          modelFlag,
				MaxTokens:      maxTokens,
				IdempotencyKey: keyFlag,
			}

			if streamFlag {
				return e.chat.ChatStream(cmd.Context(), userFlag, req, func(event chat.Event) {
					switch event.Type {
					case chat.EventContent:
						fmt.Print(event.Content)
					case chat.EventDone:
						fmt.Println()
						printTurnSummary(event.Result)
					case chat.EventError:
						fmt.Fprintf(os.Stderr, "error: %v\n", event.Err)
					}
				})
			}

			result, err := e.chat.Chat(cmd.Context(), userFlag, req)
			if err != nil {
				return err
			}
			fmt.Println(result.AssistantMessage.Content)
			printTurnSummary(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&userFlag, "user", "", "user id (required)")
	cmd.Flags().StringVar(&conversationFlag, "conversation", "", "existing conversation id")
	cmd.Flags().StringVar(&providerFlag, "provider", "", "provider override (anthropic, openai, google, deepseek, mock)")
	cmd.Flags().StringVar(&modelFlag, "model", "", "model override")
	cmd.Flags().StringVar(&keyFlag, "key", "", "idempotency key for safe retries")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "completion token budget")
	cmd.Flags().BoolVar(&streamFlag, "stream", false, "stream the reply incrementally")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func printTurnSummary(result *chat.Result) {
	if result == nil {
		return
	}
	replayed := ""
	if result.Replayed {
		replayed = " (replayed)"
	}
	fmt.Fprintf(os.Stderr, "conversation %s | %d in / %d out tokens | %d credits | balance %d%s\n",
		result.Conversation.ID,
		result.Usage.TokensIn,
		result.Usage.TokensOut,
		result.Usage.CostCredits,
		result.Balance,
		replayed,
	)
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available providers and models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tPROVIDER\tSTATUS")
			for _, model := range cfg.Catalog.Models() {
				provider, _ := cfg.Catalog.ProviderFor(model)
				status := "no key"
				if cfg.HasAdapter(provider) || provider == "mock" {
					status = "ready"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", model, provider, status)
			}
			return w.Flush()
		},
	}
}

func userCmd() *cobra.Command {
	var emailFlag string
	var planFlag string

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user and grant the plan bootstrap credits",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := schema.ParsePlan(planFlag)
			if err != nil {
				return err
			}

			e, err := buildEnv()
			if err != nil {
				return err
			}
			defer e.close()

			user := schema.User{
				ID:        uuid.NewString(),
				Email:     emailFlag,
				Plan:      plan,
				CreatedAt: time.Now().UTC(),
			}
			if err := e.store.CreateUser(cmd.Context(), user); err != nil {
				return err
			}
			balance, err := e.ledger.EnsureInitialCredits(cmd.Context(), user.ID)
			if err != nil {
				return err
			}

			fmt.Printf("created user %s (plan %s, %d credits)\n", user.ID, plan, balance)
			return nil
		},
	}

	createCmd.Flags().StringVar(&emailFlag, "email", "", "user email")
	createCmd.Flags().StringVar(&planFlag, "plan", "FREE", "plan (FREE, PRO, BUSINESS, ENTERPRISE)")

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(createCmd)
	return cmd
}

func creditsCmd() *cobra.Command {
	var userFlag string
	var grantFlag int64

	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Show or grant a user's credit balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv()
			if err != nil {
				return err
			}
			defer e.close()

			if grantFlag > 0 {
				balance, err := e.ledger.AddCredits(cmd.Context(), userFlag, grantFlag)
				if err != nil {
					return err
				}
				fmt.Printf("granted %d credits, balance %d\n", grantFlag, balance)
				return nil
			}

			balance, err := e.ledger.Balance(cmd.Context(), userFlag)
			if err != nil {
				return err
			}
			fmt.Printf("balance %d\n", balance)
			return nil
		},
	}

	cmd.Flags().StringVar(&userFlag, "user", "", "user id (required)")
	cmd.Flags().Int64Var(&grantFlag, "grant", 0, "credits to add")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func usageCmd() *cobra.Command {
	var userFlag string
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "List recent usage events for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv()
			if err != nil {
				return err
			}
			defer e.close()

			events, err := e.recorder.ListEvents(cmd.Context(), userFlag, limitFlag)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tPROVIDER\tMODEL\tIN\tOUT\tCREDITS")
			for _, event := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
					event.CreatedAt.Format(time.RFC3339),
					event.Provider,
					event.Model,
					event.TokensIn,
					event.TokensOut,
					event.CostCredits,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&userFlag, "user", "", "user id (required)")
	cmd.Flags().IntVar(&limitFlag, "limit", 20, "max events to list")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage and run agents",
	}
	cmd.AddCommand(agentLoadCmd())
	cmd.AddCommand(agentListCmd())
	cmd.AddCommand(agentRunCmd())
	return cmd
}

func agentLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load [manifest.yaml]",
		Short: "Load an agent definition from a manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			definition, err := agent.LoadManifest(args[0])
			if err != nil {
				return err
			}

			e, err := buildEnv()
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.store.PutAgent(cmd.Context(), *definition); err != nil {
				return err
			}
			fmt.Printf("loaded agent %s (%s, %d steps)\n", definition.Name, definition.ID, len(definition.Steps))
			return nil
		},
	}
}

func agentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loaded agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv()
			if err != nil {
				return err
			}
			defer e.close()

			agents, err := e.store.ListAgents(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tID\tPROVIDER\tMODEL\tSTEPS\tRUNS")
			for _, a := range agents {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n", a.Name, a.ID, a.Provider, a.Model, len(a.Steps), a.UsageCount)
			}
			return w.Flush()
		},
	}
}

func agentRunCmd() *cobra.Command {
	var userFlag string

	cmd := &cobra.Command{
		Use:   "run [agent-name] [input]",
		Short: "Execute an agent against an input",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv()
			if err != nil {
				return err
			}
			defer e.close()

			stored, err := e.store.GetAgentByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			engine := agent.NewEngine(e.store, e.router, agent.NewRegistry())
			execution, err := engine.Execute(cmd.Context(), stored.ID, args[1], userFlag)
			if err != nil {
				return err
			}

			fmt.Println(execution.Output)
			fmt.Fprintf(os.Stderr, "%d steps in %s\n", execution.StepsExecuted, execution.ExecutionTime.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&userFlag, "user", "", "user whose memory is loaded as context")

	return cmd
}

func loadConfig() (*config.Config, error) {
	if catalogFile != "" {
		return config.LoadWithCatalogFile(catalogFile)
	}
	return config.Load()
}

func createAdapters(cfg *config.Config) (map[string]adapter.Adapter, error) {
	adapters := make(map[string]adapter.Adapter)

	if cfg.AnthropicAPIKey != "" {
		a, err := adapter.NewAnthropicAdapter(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic adapter: %w", err)
		}
		adapters["anthropic"] = a
	}

	if cfg.OpenAIAPIKey != "" {
		a, err := adapter.NewOpenAIAdapter(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai adapter: %w", err)
		}
		adapters["openai"] = a
	}

	if cfg.GoogleAPIKey != "" {
		a, err := adapter.NewGoogleAdapter(cfg.GoogleAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create google adapter: %w", err)
		}
		adapters["google"] = a
	}

	if cfg.DeepSeekAPIKey != "" {
		a, err := adapter.NewDeepSeekAdapter(cfg.DeepSeekAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create deepseek adapter: %w", err)
		}
		adapters["deepseek"] = a
	}

	adapters["mock"] = adapter.NewMockAdapter()

	return adapters, nil
}
