package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nshenoy/megadl/internal/config"
	"github.com/nshenoy/megadl/internal/credentials"
	"github.com/nshenoy/megadl/internal/download"
	"github.com/nshenoy/megadl/internal/events"
	"github.com/nshenoy/megadl/internal/humanize"
	"github.com/nshenoy/megadl/internal/megaclient"
	"github.com/nshenoy/megadl/internal/progress"
	"github.com/nshenoy/megadl/internal/session"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume the most recent interrupted download session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd, args)
		},
	}
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	log := GetLogger()

	appCfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := session.Latest(appCfg.Paths.StateDir)
	if err != nil {
		return fmt.Errorf("scanning for a resumable session: %w", err)
	}
	if st == nil {
		log.Infof("no interrupted session found")
		return nil
	}
	log.Infof("resuming session %s (%d file(s) pending)", st.ID, len(st.Files))

	key := credentials.DeriveMachineKey()
	password, err := st.Credentials.DecryptedPassword(key)
	if err != nil {
		return fmt.Errorf("decrypting saved credentials: %w", err)
	}

	client, err := megaclient.Login(ctx, st.Credentials.Email, password, st.Config.ChunksPerFile)
	if err != nil {
		return fmt.Errorf("mega.nz login: %w", err)
	}
	defer client.Logout()

	var files []download.File
	for _, fe := range st.Files {
		if fe.Status == session.FileError || fe.Status == session.FileSizeMismatch {
			continue
		}
		node, err := client.ResolveHandle(ctx, fe.Handle)
		if err != nil {
			log.Warnf("could not re-resolve %s, skipping: %v", fe.Path, err)
			continue
		}
		files = append(files, download.File{Handle: fe.Handle, Node: node, DestPath: fe.Path})
	}
	if len(files) == 0 {
		log.Infof("nothing left to resume")
		return st.MarkCompleted()
	}

	bus := events.NewEventBus(0)
	defer bus.Close()

	res := CreateResourceManager()
	engine := download.NewEngine(client, res, bus, st.Config.ConcurrentFiles)
	engine.ForceOverwrite = st.Config.ForceOverwrite
	engine.CleanupOnError = st.Config.CleanupOnError

	ui := progress.NewDownloadUI(len(files))
	sink := progress.NewSink(ui, bus)
	defer sink.Close()
	log.SetOutput(ui.LogWriter())

	summary, results := engine.DownloadAll(ctx, files, st)
	sink.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Status == session.FileCompleted {
			succeeded++
		}
	}

	log.Infof("resume finished: %d completed, %s total", summary.FilesCompleted, humanize.Bytes(summary.TotalBytes))
	if succeeded < len(results) {
		return fmt.Errorf("%d of %d files failed", len(results)-succeeded, len(results))
	}
	return nil
}
