package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nshenoy/megadl/internal/config"
	"github.com/nshenoy/megadl/internal/credentials"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage megadl's saved configuration and credentials",
	}

	cmd.AddCommand(newConfigLoginCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigLoginCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save mega.nz credentials, encrypted at rest",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				fmt.Print("mega.nz email: ")
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("reading email: %w", err)
				}
				email = strings.TrimSpace(line)
			}

			fmt.Print("mega.nz password: ")
			passBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}

			path := resolveConfigPath()
			appCfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			key := credentials.DeriveMachineKey()
			encPass, err := credentials.Encrypt(key, string(passBytes))
			if err != nil {
				return fmt.Errorf("encrypting password: %w", err)
			}

			appCfg.Credentials = config.SavedCredentials{
				Email:     email,
				Password:  encPass,
				Encrypted: true,
			}

			if err := config.Save(path, appCfg); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}

			fmt.Printf("saved credentials for %s to %s\n", email, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "mega.nz account email (prompted if omitted)")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration (credentials redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			fmt.Printf("download_dir:     %s\n", appCfg.Paths.DownloadDir)
			fmt.Printf("state_dir:        %s\n", appCfg.Paths.StateDir)
			fmt.Printf("chunks_per_file:  %d\n", appCfg.Download.ChunksPerFile)
			fmt.Printf("concurrent_files: %d\n", appCfg.Download.ConcurrentFiles)
			fmt.Printf("force_overwrite:  %t\n", appCfg.Download.ForceOverwrite)
			fmt.Printf("api:              %s:%d (enabled=%t)\n", appCfg.API.Host, appCfg.API.Port, appCfg.API.Enabled)
			if appCfg.Credentials.Email != "" {
				fmt.Printf("credentials:      %s (saved)\n", appCfg.Credentials.Email)
			} else {
				fmt.Printf("credentials:      none\n")
			}
			return nil
		},
	}
}
