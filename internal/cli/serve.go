package cli

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/nshenoy/megadl/internal/config"
	"github.com/nshenoy/megadl/internal/credentials"
	"github.com/nshenoy/megadl/internal/download"
	"github.com/nshenoy/megadl/internal/events"
	"github.com/nshenoy/megadl/internal/fsops"
	"github.com/nshenoy/megadl/internal/ingressapi"
	"github.com/nshenoy/megadl/internal/megaclient"
	"github.com/nshenoy/megadl/internal/orchestrator"
	"github.com/nshenoy/megadl/internal/session"
)

var serveBindOverride string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run megadl headlessly with the local ingress API (no terminal UI)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args)
		},
	}
	cmd.Flags().StringVar(&serveBindOverride, "bind", "", "Override the configured api host:port (e.g. 127.0.0.1:9723)")
	return cmd
}

// serveState adapts a live session.State plus download engine to
// ingressapi.Enqueuer and ingressapi.SessionStore, serializing access
// since HTTP handlers and the background download loop both touch it.
type serveState struct {
	mu      sync.Mutex
	ctx     context.Context
	client  *megaclient.Client
	queue   *orchestrator.Queue
	engine  *download.Engine
	st      *session.State
	destDir string
}

func (s *serveState) Enqueue(urls []string) []string {
	s.mu.Lock()
	files, entries := s.queue.Resolve(s.ctx, urls)
	s.st.URLs = append(s.st.URLs, entries...)
	s.st.Files = append(s.st.Files, orchestrator.ToFileEntries(files)...)
	_ = s.st.Save()
	s.mu.Unlock()

	var added []string
	for _, e := range entries {
		if e.Status == session.UrlFetched {
			added = append(added, e.URL)
		}
	}

	go func() {
		s.mu.Lock()
		st := s.st
		e := s.engine
		s.mu.Unlock()
		e.DownloadAll(s.ctx, files, st)
	}()

	return added
}

func (s *serveState) Current() *session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *serveState) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.MarkPaused()
}

func (s *serveState) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = fsops.OS{}.Remove(path + ".part")
	return s.st.RemoveFile(path)
}

func (s *serveState) Retry(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.RetryFile(path)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	log := GetLogger()

	appCfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if appCfg.Credentials.Email == "" {
		return fmt.Errorf("no saved credentials; run 'megadl config login' first")
	}

	key := credentials.DeriveMachineKey()
	password, err := appCfg.Credentials.DecryptedPassword(key)
	if err != nil {
		return fmt.Errorf("decrypting saved credentials: %w", err)
	}

	client, err := megaclient.Login(ctx, appCfg.Credentials.Email, password, appCfg.Download.ChunksPerFile)
	if err != nil {
		return fmt.Errorf("mega.nz login: %w", err)
	}
	defer client.Logout()

	if err := os.MkdirAll(appCfg.Paths.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("creating download directory: %w", err)
	}

	bus := events.NewEventBus(0)
	defer bus.Close()

	res := CreateResourceManager()
	// A single Engine (and its one shared permit pool) is reused across
	// every batch this process's serveState.Enqueue pushes in, so N
	// concurrent bookmarklet submissions still cap out at ConcurrentFiles
	// simultaneous transfers rather than N*ConcurrentFiles.
	engine := download.NewEngine(client, res, bus, appCfg.Download.ConcurrentFiles)
	engine.ForceOverwrite = appCfg.Download.ForceOverwrite
	engine.CleanupOnError = appCfg.Download.CleanupOnError

	st := session.New(appCfg.Paths.StateDir, appCfg.Credentials, appCfg.Download)

	queue := orchestrator.NewQueue(client, appCfg.Paths.DownloadDir)
	queue.Bus = bus
	queue.ForceOverwrite = appCfg.Download.ForceOverwrite

	state := &serveState{
		ctx:     ctx,
		client:  client,
		queue:   queue,
		engine:  engine,
		st:      st,
		destDir: appCfg.Paths.DownloadDir,
	}

	srv := ingressapi.NewServer(state, state, bus, log)

	addr := fmt.Sprintf("%s:%d", appCfg.API.Host, appCfg.API.Port)
	if serveBindOverride != "" {
		addr = serveBindOverride
	}

	log.Infof("ingress API listening on http://%s", addr)
	if err := ingressapi.ListenAndServe(addr, srv); err != nil {
		return fmt.Errorf("ingress API stopped: %w", err)
	}
	return nil
}
