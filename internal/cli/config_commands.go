package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rescale/rescale-intake/internal/config"
	inthttp "github.com/rescale/rescale-intake/internal/http"
	"github.com/rescale/rescale-intake/internal/validation"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage rescale-intake configuration",
		Long: `Configuration management commands for rescale-intake.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Test the connection to the upload store
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for rescale-intake.

The configuration will be saved to ~/.config/rescale-intake/config.csv

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := cfgFile
			if configPath == "" {
				configPath = config.GetDefaultConfigPath()
			}
			if err := runConfigInit(cmd.InOrStdin(), cmd.OutOrStdout(), configPath, force); err != nil {
				return err
			}
			GetLogger().Info().Str("path", configPath).Msg("Configuration saved")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// runConfigInit prompts for the main settings on in and writes them to path.
func runConfigInit(in io.Reader, out io.Writer, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
			fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
			return nil
		}
	}

	reader := bufio.NewReader(in)
	ask := func(prompt, def string) string {
		if def != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, def)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			return def
		}
		return input
	}
	askInt := func(prompt string, def int) int {
		if v, err := strconv.Atoi(ask(prompt, strconv.Itoa(def))); err == nil && v > 0 {
			return v
		}
		return def
	}

	cfg := config.Default()

	fmt.Fprintln(out, "rescale-intake Configuration Setup")
	fmt.Fprintln(out, "==================================")
	fmt.Fprintln(out)

	cfg.BaseURL = ask("Upload store base URL", cfg.BaseURL)

	mode := strings.ToLower(ask("Allow multiple attachments? [y/N]", "n"))
	cfg.Multiple = mode == "y" || mode == "yes"

	cfg.MaxConcurrent = askInt("Concurrent uploads", cfg.MaxConcurrent)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Deletion backends: none, http, s3, azure, bus")
	cfg.DeleteBackend = strings.ToLower(ask("Deletion backend", cfg.DeleteBackend))
	switch cfg.DeleteBackend {
	case config.DeleteHTTP:
		cfg.DeleteURL = ask("Deletion endpoint", cfg.DeleteEndpoint())
	case config.DeleteS3:
		cfg.S3Bucket = ask("S3 bucket", "")
		cfg.S3Region = ask("S3 region", "us-east-1")
		cfg.ObjectPrefix = ask("Object key prefix", "")
	case config.DeleteAzure:
		cfg.AzureContainerURL = ask("Azure container URL", "")
		cfg.ObjectPrefix = ask("Blob name prefix", "")
	}

	fmt.Fprintln(out)
	proxyInput := strings.ToLower(ask("Configure proxy? [y/N]", "n"))
	if proxyInput == "y" || proxyInput == "yes" {
		fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
		cfg.ProxyMode = ask("Proxy mode", "system")
		if cfg.ProxyMode != "no-proxy" {
			cfg.ProxyHost = ask("Proxy host", "")
			cfg.ProxyPort = askInt("Proxy port", 8080)
			if cfg.ProxyMode == "basic" || cfg.ProxyMode == "ntlm" {
				cfg.ProxyUser = ask("Proxy user", "")
				fmt.Fprintln(out, "  The proxy password is read from INTAKE_PROXY_PASSWORD at run time.")
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := config.SaveConfigCSV(cfg, path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Configuration saved to: %s\n", path)
	fmt.Fprintln(out, "Test your configuration with: rescale-intake config test")
	return nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/rescale-intake/config.csv)
  2. Environment variables (INTAKE_BASE_URL, INTAKE_DELETE_URL, HTTPS_PROXY)
  3. Command-line flags (--base-url, --delete-backend, --proxy-*)

Priority: flags > environment > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := cfgFile
			if configPath == "" {
				configPath = config.GetDefaultConfigPath()
			}

			cfg, err := config.LoadConfigCSV(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.MergeWithFlags(baseURL, deleteBackend, proxyMode, proxyHost, proxyPort)

			printConfig(cmd.OutOrStdout(), cfg)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration file: %s\n", configPath)
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				fmt.Fprintln(out, "  (file does not exist - using defaults)")
			}
			return nil
		},
	}

	return cmd
}

func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "Current Configuration")
	fmt.Fprintln(out, "=====================")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Store:")
	fmt.Fprintf(out, "  Base URL:        %s\n", cfg.BaseURL)
	fmt.Fprintf(out, "  Delete Backend:  %s\n", cfg.DeleteBackend)
	switch cfg.DeleteBackend {
	case config.DeleteHTTP:
		fmt.Fprintf(out, "  Delete URL:      %s\n", cfg.DeleteEndpoint())
	case config.DeleteS3:
		fmt.Fprintf(out, "  S3 Bucket:       %s (%s)\n", cfg.S3Bucket, cfg.S3Region)
	case config.DeleteAzure:
		fmt.Fprintf(out, "  Azure Container: %s\n", redactQuery(cfg.AzureContainerURL))
	}
	if cfg.ObjectPrefix != "" {
		fmt.Fprintf(out, "  Object Prefix:   %s\n", cfg.ObjectPrefix)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Intake:")
	fmt.Fprintf(out, "  Multiple:        %t\n", cfg.Multiple)
	fmt.Fprintf(out, "  Max File Size:   %s\n", humanize.IBytes(uint64(cfg.MaxFileSize)))
	fmt.Fprintf(out, "  Extensions:      %s\n", strings.Join(validation.NewRules(0, cfg.AllowedExtensions).AllowedList(), ", "))
	fmt.Fprintf(out, "  Max Concurrent:  %d\n", cfg.MaxConcurrent)
	fmt.Fprintf(out, "  Include Hidden:  %t\n", cfg.IncludeHidden)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Proxy Settings:")
	fmt.Fprintf(out, "  Proxy Mode: %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(out, "  Proxy Host: %s\n", cfg.ProxyHost)
		fmt.Fprintf(out, "  Proxy Port: %d\n", cfg.ProxyPort)
	}
	if cfg.ProxyUser != "" {
		// Never display any portion of the password
		pw := "<not set>"
		if cfg.ProxyPassword != "" {
			pw = "<set>"
		}
		fmt.Fprintf(out, "  Proxy User: %s (password %s)\n", cfg.ProxyUser, pw)
	}
	fmt.Fprintln(out)
}

// redactQuery strips a SAS token from a container URL for display.
func redactQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i] + "?<redacted>"
	}
	return raw
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test the connection to the upload store",
		Long: `Send a request to the configured base URL through the configured proxy.

Use this to verify network connectivity before uploading.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			out := cmd.OutOrStdout()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Store URL: %s\n", cfg.BaseURL)
			fmt.Fprintln(out, "Testing connection...")

			client, err := inthttp.CreateOptimizedClient(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to create HTTP client: %w", err)
			}

			ctx, cancel := context.WithTimeout(GetContext(), 10*time.Second)
			defer cancel()

			req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodHead, cfg.BaseURL, nil)
			if err != nil {
				return fmt.Errorf("failed to build request: %w", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				logger.Error().Err(err).Msg("Connection test failed")
				fmt.Fprintln(out, "✗ Connection FAILED")
				fmt.Fprintf(out, "  Error: %v\n", err)
				return fmt.Errorf("connection test failed")
			}
			resp.Body.Close()

			fmt.Fprintf(out, "✓ Connection SUCCESSFUL (HTTP %d, %s)\n", resp.StatusCode, resp.Proto)
			return nil
		},
	}

	return cmd
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			configPath := cfgFile
			if configPath == "" {
				configPath = config.GetDefaultConfigPath()
				fmt.Fprintln(out, "Default configuration path:")
			} else {
				fmt.Fprintln(out, "Configuration path (from --config flag):")
			}

			fmt.Fprintf(out, "  %s\n", configPath)
			fmt.Fprintln(out)

			if fileInfo, err := os.Stat(configPath); err == nil {
				fmt.Fprintln(out, "Status: ✓ File exists")
				fmt.Fprintf(out, "Size:   %d bytes\n", fileInfo.Size())
				fmt.Fprintf(out, "Modified: %s\n", fileInfo.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Create a configuration file with: rescale-intake config init")
			}

			return nil
		},
	}

	return cmd
}
