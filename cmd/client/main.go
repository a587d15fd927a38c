package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"balance-scale-client/internal/engine"
	"balance-scale-client/internal/httpapi"
	"balance-scale-client/internal/identity"
	"balance-scale-client/internal/session"
	"balance-scale-client/internal/transport"
	"balance-scale-client/pkg/config"
	"balance-scale-client/pkg/logging"
	"balance-scale-client/pkg/protocol"
)

func main() {
	_ = godotenv.Load()

	logger, err := logging.New(os.Getenv("BALANCE_DEBUG") != "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(logger, "balance")
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	store := identity.NewFileStore(filepath.Join(cfg.StateDir, "identity.json"))
	id, err := identity.Ensure(store)
	if err != nil {
		logger.Fatal("client identity", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tr := transport.New(cfg.ServerURL, logger.Named("transport"), transport.Options{})
	sess := session.New(ctx, engine.NewState(engine.Config{
		ClientID:         id.ClientID,
		InviteLockedCode: protocol.NormalizeLobbyCode(cfg.LobbyCode),
		ChatEnabled:      cfg.ChatEnabled,
	}), tr, logger.Named("session"))
	tr.SetHandler(sess)

	go func() {
		if err := tr.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("transport stopped", zap.Error(err))
		}
	}()

	if cfg.DebugAddr != "" {
		handler := httpapi.SetupRoutes(sess, cfg.InviteBaseURL, logger.Named("httpapi"))
		go func() {
			logger.Info("debug api listening", zap.String("addr", cfg.DebugAddr))
			if err := http.ListenAndServe(cfg.DebugAddr, handler); err != nil {
				logger.Error("debug api", zap.Error(err))
			}
		}()
	}

	go printSnapshots(ctx, sess)

	runPrompt(ctx, sess, cfg)
	sess.Shutdown()
}

// printSnapshots renders status, result and notice changes to stdout. It
// is a pure consumer of read-only snapshots.
func printSnapshots(ctx context.Context, sess *session.Session) {
	out := make(chan session.Snapshot, 16)
	sess.Subscribe("stdout", out)
	defer sess.Unsubscribe("stdout")

	var lastStatus, lastResult string
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-out:
			if !ok {
				return
			}
			for _, n := range snap.Notices {
				fmt.Printf("*** %s: %s\n", n.Title, n.Text)
			}
			if snap.State.Status != lastStatus && snap.State.Status != "" {
				lastStatus = snap.State.Status
				fmt.Println(">>", lastStatus)
			}
			if snap.State.Result != lastResult && snap.State.Result != "" {
				lastResult = snap.State.Result
				fmt.Printf("   %s [%s]\n", lastResult, snap.State.ResultTone)
			}
			if hint := snap.State.JoinHint; hint != "" {
				fmt.Println("   hint:", hint)
			}
		}
	}
}

func runPrompt(ctx context.Context, sess *session.Session, cfg *config.Config) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: create [name] | join CODE [name] | submit N | start | bots | chat TEXT | quit")

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "create":
			name := cfg.PlayerName
			if len(fields) > 1 {
				name = fields[1]
			}
			sess.Dispatch(engine.RequestCreate{Name: name})

		case "join":
			if len(fields) < 2 {
				fmt.Println("usage: join CODE [name]")
				continue
			}
			name := cfg.PlayerName
			if len(fields) > 2 {
				name = fields[2]
			}
			sess.Dispatch(engine.RequestJoin{Name: name, Code: fields[1]})

		case "submit":
			if len(fields) < 2 {
				fmt.Println("usage: submit N")
				continue
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("not a number:", fields[1])
				continue
			}
			sess.Dispatch(engine.SubmitNumber{Value: n})

		case "start":
			sess.Dispatch(engine.StartRound{})

		case "bots":
			sess.Dispatch(engine.FillBots{})

		case "chat":
			sess.Dispatch(engine.SendChat{Text: strings.Join(fields[1:], " ")})

		case "quit", "exit":
			return

		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}
