// Command flux-broker runs one rank of the tree overlay: it loads its
// configuration, establishes its CURVE identity, binds to its children
// (if any), dials its parent (if any), and blocks driving the reactor
// until signaled to stop.
package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/flux-framework/flux-go/pkg/config"
	"github.com/flux-framework/flux-go/pkg/dispatch"
	"github.com/flux-framework/flux-go/pkg/message"
	"github.com/flux-framework/flux-go/pkg/observability"
	"github.com/flux-framework/flux-go/pkg/overlay"
	"github.com/flux-framework/flux-go/pkg/reactor"
	"github.com/flux-framework/flux-go/pkg/scratchpad"
	"github.com/flux-framework/flux-go/pkg/security"
	"github.com/flux-framework/flux-go/pkg/topology"
	"github.com/flux-framework/flux-go/pkg/transport"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("flux-broker", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "path to YAML config file")
	rank := fs.Uint32("rank", 0, "override this broker's rank")
	size := fs.Uint32("size", 0, "override the instance's total rank count")
	arity := fs.Uint32("arity", 0, "override the tree's branching factor")
	parentURI := fs.String("parent-uri", "", "override the parent's dial URI")
	bindURI := fs.String("bind-uri", "", "override this rank's bind URI")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 1
	}
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "rank":
			cfg.Rank = *rank
		case "size":
			cfg.Size = *size
		case "arity":
			cfg.Arity = *arity
		case "parent-uri":
			cfg.ParentURI = *parentURI
		case "bind-uri":
			cfg.BindURI = *bindURI
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to setup logger:", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("flux-broker starting", zap.Uint32("rank", cfg.Rank), zap.Uint32("size", cfg.Size), zap.Uint32("arity", cfg.Arity))

	if err := runBroker(cfg, logger); err != nil {
		logger.Error("broker exited with error", zap.Error(err))
		return 1
	}
	return 0
}

func runBroker(cfg *config.Config, logger *zap.Logger) error {
	tree, err := topology.New(cfg.Size, cfg.Arity)
	if err != nil {
		return fmt.Errorf("build topology: %w", err)
	}

	own, err := security.LoadPrivate(certPath(cfg.Security.CertDir, "broker_private"))
	if err != nil {
		return fmt.Errorf("load own certificate: %w", err)
	}

	authStore := security.NewAuthStore()
	for _, entry := range cfg.Security.AuthorizedPeers {
		name, pub, perr := parseAuthorizedPeer(entry)
		if perr != nil {
			return fmt.Errorf("authorized_peers entry %q: %w", entry, perr)
		}
		authStore.Authorize(name, pub)
	}
	auth, err := security.Enable(authStore)
	if err != nil {
		return fmt.Errorf("enable authenticator: %w", err)
	}
	defer auth.Disable()

	r := reactor.New(logger)
	disp := dispatch.NewRegistry()

	// ov is wired up after the overlay is constructed; the transport
	// sockets' callbacks close over it so construction order can go
	// sockets-then-overlay without a separate setter method.
	var ov *overlay.Overlay

	children, err := tree.Children(cfg.Rank)
	if err != nil {
		return fmt.Errorf("enumerate children: %w", err)
	}

	var bind *transport.BindSocket
	if len(children) > 0 {
		bind = transport.NewBindSocket(r, own, auth, logger,
			func(e transport.Envelope) { ov.OnChildMessage(string(e.Peer), e.Msg) },
			func(peer transport.PeerID, err error) { ov.OnChildError(string(peer), err) },
		)
		if cfg.BindURI == "" {
			return fmt.Errorf("rank %d has children but no bind_uri configured", cfg.Rank)
		}
		if err := bind.Listen(cfg.BindURI); err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.BindURI, err)
		}
		logger.Info("listening for children", zap.String("addr", cfg.BindURI), zap.Int("children", len(children)))
	}

	var dial *transport.DialSocket
	if cfg.Rank != 0 {
		dial = transport.NewDialSocket(r, own, cfg.Rank, logger,
			func(msg *message.Message) { ov.OnParentMessage(msg) },
			func(err error) { logger.Warn("parent connection lost", zap.Error(err)) },
		)
		parentPub, perr := decodeKey(cfg.Security.ParentPubkey)
		if perr != nil {
			return fmt.Errorf("decode parent_pubkey: %w", perr)
		}
		if err := dial.Dial(cfg.ParentURI, parentPub); err != nil {
			return fmt.Errorf("dial parent %s: %w", cfg.ParentURI, err)
		}
		logger.Info("connected to parent", zap.String("addr", cfg.ParentURI))
	}

	sender := overlay.NewTransportSender(bind, dial)
	ovCfg := overlay.Config{
		LocalRank: cfg.Rank,
		Size:      cfg.Size,
		Arity:     cfg.Arity,
		SyncMin:   cfg.Sync.Min,
		SyncMax:   cfg.Sync.Max,
		IdleMin:   cfg.Sync.IdleMin,
		IdleMax:   cfg.Sync.IdleMax,
	}
	ov, err = overlay.New(r, tree, ovCfg, sender, disp, logger)
	if err != nil {
		return fmt.Errorf("construct overlay: %w", err)
	}

	scratchpad.New(disp, scratchpad.NewStore(), ov, logger)

	sigWatcher := r.NewSignalWatcher(func(s os.Signal) {
		logger.Info("received signal, shutting down", zap.String("signal", s.String()))
		go r.Stop()
	}, syscall.SIGINT, syscall.SIGTERM)
	sigWatcher.Start()

	logger.Info("broker running; press Ctrl+C to exit")
	r.Run()
	return nil
}

func certPath(dir, name string) string {
	return dir + string(os.PathSeparator) + name
}

// parseAuthorizedPeer splits a "name=base64pubkey" authorized_peers
// config entry and decodes the key.
func parseAuthorizedPeer(entry string) (name string, pub [security.KeySize]byte, err error) {
	i := strings.IndexByte(entry, '=')
	if i < 0 {
		return "", pub, fmt.Errorf("expected \"name=pubkey\", got %q", entry)
	}
	pub, err = decodeKey(entry[i+1:])
	if err != nil {
		return "", pub, err
	}
	return entry[:i], pub, nil
}

func decodeKey(b64 string) (key [security.KeySize]byte, err error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return key, fmt.Errorf("invalid base64: %w", err)
	}
	if len(raw) != security.KeySize {
		return key, fmt.Errorf("expected %d key bytes, got %d", security.KeySize, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}
