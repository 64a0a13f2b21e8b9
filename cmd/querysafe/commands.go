package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/poiesic/querysafe"
	"github.com/poiesic/querysafe/chat"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/reembed"
	"github.com/poiesic/querysafe/server"
	"github.com/urfave/cli/v2"
)

func openEngine(c *cli.Context) (*querysafe.Engine, error) {
	cfg := loadedConfig(c)
	opts, err := querysafe.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, querysafe.WithLogger(slog.Default()))
	return querysafe.Open(cfg.DataDir, opts...)
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadedConfig(c)
	addr := cfg.Listen
	if c.IsSet("listen") {
		addr = c.String("listen")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	scheduled, err := engine.Coordinator().Recover(ctx)
	if err != nil {
		slog.Warn("recovery incomplete", "err", err)
	}
	if len(scheduled) > 0 {
		slog.Info("recovering chatbots", "count", len(scheduled))
	}

	srv, err := server.New(engine,
		server.WithLogger(slog.Default()),
		server.WithAllowedOrigins(cfg.AllowedOrigins...),
	)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, addr)
}

// readUploads reads the named files for upload.
func readUploads(paths []string) ([]querysafe.Upload, error) {
	uploads := make([]querysafe.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, querysafe.Upload{Name: filepath.Base(p), Data: data})
	}
	return uploads, nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file is required")
	}
	uploads, err := readUploads(c.Args().Slice())
	if err != nil {
		return err
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := c.Context
	tenant := core.TenantID(c.String("chatbot"))
	docs, err := engine.Upload(ctx, tenant, uploads...)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Stored %d documents for %s\n", len(docs), tenant)

	if !c.Bool("wait") {
		return nil
	}
	if err := engine.Coordinator().Wait(ctx, tenant); err != nil {
		return err
	}
	state, err := engine.Coordinator().State(ctx, tenant)
	if err != nil {
		return err
	}
	printStates(c.App.Writer, []*core.TenantState{state})
	if state.Status == core.StatusFailed {
		return fmt.Errorf("ingestion failed: %s", state.LastError)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	var states []*core.TenantState
	if c.IsSet("chatbot") {
		state, err := engine.Coordinator().State(c.Context, core.TenantID(c.String("chatbot")))
		if err != nil {
			return err
		}
		states = append(states, state)
	} else {
		states, err = engine.Coordinator().Tenants(c.Context)
		if err != nil {
			return err
		}
	}
	if len(states) == 0 {
		fmt.Fprintln(c.App.Writer, "No chatbots")
		return nil
	}
	printStates(c.App.Writer, states)
	return nil
}

func askCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("a question is required")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	resp, err := engine.Answer(c.Context, chat.Request{
		Tenant:         core.TenantID(c.String("chatbot")),
		Query:          query,
		ConversationID: c.String("conversation"),
	})
	if err != nil {
		if core.IsNotIndexed(err) {
			return fmt.Errorf("chatbot is not ready: %w", err)
		}
		return err
	}
	printAnswer(c.App.Writer, resp, c.Bool("show-matches"))
	return nil
}

func rebuildCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := c.Context
	var tenants []core.TenantID
	if c.IsSet("chatbot") {
		tenant := core.TenantID(c.String("chatbot"))
		if err := engine.ScheduleIngestion(ctx, tenant); err != nil {
			return err
		}
		tenants = []core.TenantID{tenant}
	} else {
		tenants, err = engine.Coordinator().Recover(ctx)
		if err != nil {
			return err
		}
	}
	if len(tenants) == 0 {
		fmt.Fprintln(c.App.Writer, "Nothing to rebuild")
		return nil
	}

	states := make([]*core.TenantState, 0, len(tenants))
	for _, tenant := range tenants {
		if err := engine.Coordinator().Wait(ctx, tenant); err != nil {
			return err
		}
		state, err := engine.Coordinator().State(ctx, tenant)
		if err != nil {
			return err
		}
		states = append(states, state)
	}
	printStates(c.App.Writer, states)
	return nil
}

func reembedCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	r, err := reembed.NewReembedder(engine.Coordinator(), engine.Provider().Embedder(), &reembed.Config{
		All:     c.Bool("all"),
		Timeout: c.Duration("timeout"),
	}, os.Stderr)
	if err != nil {
		return err
	}
	return r.Run(c.Context)
}

func conversationsCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := c.Context
	tenant := core.TenantID(c.String("chatbot"))
	id := c.String("id")
	if id == "" {
		if c.Bool("delete") {
			return errors.New("--delete requires --id")
		}
		convs, err := engine.Conversations(ctx, tenant)
		if err != nil {
			return err
		}
		if len(convs) == 0 {
			fmt.Fprintln(c.App.Writer, "No conversations")
			return nil
		}
		printConversations(c.App.Writer, convs)
		return nil
	}

	if c.Bool("delete") {
		if err := engine.DeleteConversation(ctx, tenant, id); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Deleted conversation %s\n", id)
		return nil
	}
	msgs, err := engine.History(ctx, tenant, id, c.Int("limit"))
	if err != nil {
		return err
	}
	printHistory(c.App.Writer, msgs)
	return nil
}

func deleteCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	tenant := core.TenantID(c.String("chatbot"))
	if err := engine.DeleteChatbot(c.Context, tenant); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted chatbot %s\n", tenant)
	return nil
}

func statusColor(status core.Status) func(a ...any) string {
	switch status {
	case core.StatusReady:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	case core.StatusFailed:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	default:
		return color.New(color.FgYellow).SprintFunc()
	}
}

func printStates(w io.Writer, states []*core.TenantState) {
	for _, s := range states {
		fmt.Fprintf(w, "%-24s %s  generation=%d chunks=%d", s.Tenant, statusColor(s.Status)(s.Status), s.Generation, s.ChunkCount)
		if s.ModelTag != "" {
			fmt.Fprintf(w, " model=%s", s.ModelTag)
		}
		fmt.Fprintln(w)
		for _, name := range s.FailedDocuments {
			fmt.Fprintf(w, "  skipped %s\n", name)
		}
		if s.Status == core.StatusFailed && s.LastError != "" {
			fmt.Fprintf(w, "  error: %s\n", s.LastError)
		}
	}
}

func printAnswer(w io.Writer, resp *chat.Response, showMatches bool) {
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(w, "%s %s\n", boldCyan("Bot:"), resp.Answer)
	fmt.Fprintf(w, "conversation %s (generation %d)\n", resp.ConversationID, resp.Generation)
	if !showMatches {
		return
	}
	for i, m := range resp.Retrieved {
		fmt.Fprintf(w, "  [%d] %.3f %s\n", i+1, m.Score, oneLine(m.Text, 100))
	}
}

func printConversations(w io.Writer, convs []*core.Conversation) {
	for _, conv := range convs {
		fmt.Fprintf(w, "%s  updated %s", conv.Id, conv.LastUpdated.Local().Format(time.DateTime))
		if conv.Visitor != "" {
			fmt.Fprintf(w, " visitor=%s", conv.Visitor)
		}
		fmt.Fprintln(w)
	}
}

func printHistory(w io.Writer, msgs []*core.Message) {
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()
	for _, msg := range msgs {
		label := bold(msg.Role.Label() + ":")
		if msg.Role == core.RoleBot {
			label = boldCyan(msg.Role.Label() + ":")
		}
		fmt.Fprintf(w, "%s %s\n", label, msg.Text)
	}
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}
