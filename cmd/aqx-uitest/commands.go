package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/aqx-uitest/pkg/browser"
	"github.com/entrhq/aqx-uitest/pkg/config"
	"github.com/entrhq/aqx-uitest/pkg/harness"
)

type rootFlags struct {
	configPath string
	headless   bool
	browser    string
	getenv     func(string) string
}

// newRootCmd builds the command tree. getenv replaces os.Getenv when non-nil.
func newRootCmd(getenv func(string) string) *cobra.Command {
	flags := &rootFlags{getenv: getenv}
	root := &cobra.Command{
		Use:           "aqx-uitest",
		Short:         "Browser UI test tooling for AQX Trader",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML config file (default $E2E_CONFIG)")
	root.PersistentFlags().BoolVar(&flags.headless, "headless", false, "run the browser headless")
	root.PersistentFlags().StringVar(&flags.browser, "browser", "", "chromium, firefox or webkit")

	root.AddCommand(
		newInstallCmd(flags),
		newLoginCmd(flags),
		newConfigCmd(flags),
	)
	return root
}

// load reads the configuration with flag overrides on top.
func (f *rootFlags) load(cmd *cobra.Command) (*config.Config, error) {
	overrides := map[string]any{}
	if cmd.Flags().Changed("headless") {
		overrides["browser.headless"] = f.headless
	}
	if f.browser != "" {
		overrides["browser.name"] = f.browser
	}
	return config.Load(config.LoadOptions{
		ConfigPath: f.configPath,
		Getenv:     f.getenv,
		Overrides:  overrides,
	})
}

func newInstallCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the Playwright driver and the configured browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installing Playwright with %s...\n", cfg.Browser.Name)
			if err := browser.Install(cfg.Browser.Name); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Done.")
			return nil
		},
	}
}

func newLoginCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in once with the configured account and close the session",
		Long: `Launch the browser, log in with AQX_USERNAME / AQX_PASSWORD against the
selected environment and tear everything down again. Use it to check
credentials and connectivity before a long suite run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireCredentials(); err != nil {
				return err
			}
			suite, err := harness.New(harness.Options{Config: cfg, Console: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			loginErr := suite.BeforeSession(context.Background())
			closeErr := suite.AfterSession()
			if loginErr != nil {
				return loginErr
			}
			if closeErr != nil {
				return closeErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s.\n", cfg.BaseURL, cfg.Username)
			return nil
		},
	}
}

func newConfigCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with the password redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg)
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
