// Command typestake runs the typing-challenge relay: an HTTP/WebSocket server
// that lets a chat agent create staked typing challenges and settles rewards
// when a verified proof of the result arrives.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/m4xw311/typestake/agent"
	"github.com/m4xw311/typestake/config"
	"github.com/m4xw311/typestake/errors"
	"github.com/m4xw311/typestake/hub"
	"github.com/m4xw311/typestake/llm"
	"github.com/m4xw311/typestake/proof"
	"github.com/m4xw311/typestake/rails"
	"github.com/m4xw311/typestake/server"
	"github.com/m4xw311/typestake/session"
	"github.com/m4xw311/typestake/settle"
	"github.com/m4xw311/typestake/store"
	"github.com/m4xw311/typestake/tools"
)

const sessionDir = ".typestake/sessions"

// sessionName is the shared conversation thread; every connected client talks
// to the same agent.
const sessionName = "relay"

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	provider := rails.NewClient(rails.Options{
		Endpoint:   cfg.RailsEndpoint,
		WalletID:   cfg.WalletID,
		WalletSeed: cfg.WalletSeed,
		NetworkID:  cfg.NetworkID,
		Timeout:    cfg.TransferTimeout,
	})
	verifier := proof.NewHTTPVerifier(cfg.VerifierURL, cfg.UpstreamTimeout)
	builder := proof.NewRequestBuilder(cfg.ProofAppID, cfg.ProofAppSecret, cfg.ProofProviderID, cfg.CallbackBaseURL)

	engine := settle.New(st, provider, verifier, settle.Config{
		ChainID:         cfg.ChainID,
		AccountAddress:  cfg.AccountAddress,
		AgentAddress:    cfg.AgentAddress,
		SeedAmountWei:   cfg.SeedAmountWei,
		RewardAmountWei: cfg.RewardAmountWei,
	}, log)

	client, err := newLLMClient(cfg)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	registry.Register(&tools.CreateChallengeTool{Engine: engine})
	registry.Register(&tools.ListChallengesTool{Store: st})
	registry.Register(&tools.GenerateProofRequestTool{Store: st, Builder: builder})
	registry.Register(&tools.DepositFundsTool{Engine: engine})
	registry.Register(&tools.WithdrawFundsTool{Engine: engine})

	sess, err := session.LoadOrNew(sessionDir, sessionName)
	if err != nil {
		return err
	}

	h := hub.New(log)
	bridge := agent.New(client, sess, registry, log)
	bridge.SetBroadcast(func(chunk agent.Chunk) {
		h.Broadcast(hub.Frame{Type: chunk.Kind, Content: chunk.Content})
	})
	engine.SetNotifier(bridge)

	srv := server.New(engine, st, provider, bridge, h, cfg.ChainID, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx, fmt.Sprintf(":%d", cfg.Port))
	})

	log.Info("relay started",
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
		"model", cfg.Model,
		"network", cfg.NetworkID,
	)
	return g.Wait()
}

func newLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "anthropic":
		return llm.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.Model)
	case "openai":
		return llm.NewOpenAIClient(cfg.OpenAIAPIKey, "", cfg.Model)
	case "mock":
		return &llm.MockClient{}, nil
	default:
		return nil, errors.WithKind(errors.KindConfig, "unknown llm provider %q", cfg.LLMProvider)
	}
}
