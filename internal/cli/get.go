package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nshenoy/megadl/internal/config"
	"github.com/nshenoy/megadl/internal/credentials"
	"github.com/nshenoy/megadl/internal/download"
	"github.com/nshenoy/megadl/internal/events"
	"github.com/nshenoy/megadl/internal/humanize"
	"github.com/nshenoy/megadl/internal/megaclient"
	"github.com/nshenoy/megadl/internal/notify"
	"github.com/nshenoy/megadl/internal/orchestrator"
	"github.com/nshenoy/megadl/internal/progress"
	"github.com/nshenoy/megadl/internal/session"
)

var (
	getOutputDir  string
	getForce      bool
	getConfigFile string
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <url|.dlc-path> [more...]",
		Short: "Download one or more mega.nz links or .dlc containers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, args)
		},
	}

	cmd.Flags().StringVarP(&getOutputDir, "output", "o", "", "Destination directory (defaults to the configured download_dir)")
	cmd.Flags().BoolVarP(&getForce, "force", "f", false, "Overwrite existing files regardless of size")
	cmd.Flags().StringVar(&getConfigFile, "config-file", "", "Path to megadl.toml (defaults to the platform config dir)")

	return cmd
}

func resolveConfigPath() string {
	if getConfigFile != "" {
		return getConfigFile
	}
	if cfgFile != "" {
		return cfgFile
	}
	return filepath.Join(config.DefaultPathConfig().ConfigDir, "megadl.toml")
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	log := GetLogger()

	appCfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if appCfg.Credentials.Email == "" {
		return fmt.Errorf("no saved credentials; run 'megadl config login' first")
	}
	if getOutputDir == "" {
		getOutputDir = appCfg.Paths.DownloadDir
	}
	if getForce {
		appCfg.Download.ForceOverwrite = true
	}

	key := credentials.DeriveMachineKey()
	password, err := appCfg.Credentials.DecryptedPassword(key)
	if err != nil {
		return fmt.Errorf("decrypting saved credentials: %w", err)
	}

	bus := events.NewEventBus(0)
	defer bus.Close()

	log.Infof("logging in as %s", appCfg.Credentials.Email)
	client, err := megaclient.Login(ctx, appCfg.Credentials.Email, password, appCfg.Download.ChunksPerFile)
	if err != nil {
		return fmt.Errorf("mega.nz login: %w", err)
	}
	defer client.Logout()

	if err := os.MkdirAll(getOutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	st := session.New(appCfg.Paths.StateDir, appCfg.Credentials, appCfg.Download)

	queue := orchestrator.NewQueue(client, getOutputDir)
	queue.Bus = bus
	queue.ForceOverwrite = appCfg.Download.ForceOverwrite
	files, urlEntries := queue.Resolve(ctx, args)
	st.URLs = urlEntries
	st.Files = orchestrator.ToFileEntries(files)
	if err := st.Save(); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}

	failed := 0
	for _, e := range urlEntries {
		if e.Status == session.UrlError {
			failed++
			log.Errorf("could not resolve %s: %s", e.URL, e.ErrMsg)
		}
	}
	if len(files) == 0 {
		if failed > 0 {
			return fmt.Errorf("no files resolved from %d input(s)", len(args))
		}
		log.Infof("nothing to download")
		return nil
	}

	res := CreateResourceManager()
	engine := download.NewEngine(client, res, bus, appCfg.Download.ConcurrentFiles)
	engine.ForceOverwrite = appCfg.Download.ForceOverwrite
	engine.CleanupOnError = appCfg.Download.CleanupOnError

	ui := progress.NewDownloadUI(len(files))
	sink := progress.NewSink(ui, bus)
	defer sink.Close()
	log.SetOutput(ui.LogWriter())

	summary, results := engine.DownloadAll(ctx, files, st)
	sink.Wait()

	notifyCfg := notify.DefaultConfig()
	notifier := notify.NewNotifier(notifyCfg, log)

	succeeded := 0
	for _, r := range results {
		if r.Status == session.FileCompleted {
			succeeded++
		} else if r.Err != nil && notifyCfg.ShowFileFailed {
			notifier.NotifyFileFailed(r.Stats.Name, r.Err.Error())
		}
	}

	if notifyCfg.ShowBatchComplete {
		notifier.NotifyBatchComplete(succeeded, len(results)-succeeded, getOutputDir)
	}

	log.Infof("finished: %d completed, %d skipped, %d failed, %s total",
		summary.FilesCompleted, summary.FilesSkipped, len(results)-succeeded, humanize.Bytes(summary.TotalBytes))

	if succeeded < len(results) {
		return fmt.Errorf("%d of %d files failed", len(results)-succeeded, len(results))
	}
	return nil
}
