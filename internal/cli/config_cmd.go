// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration inspection and editing commands.
//
// Command tree:
//   config show          Print the effective configuration (API key redacted)
//   config path          Print the config file location
//   config get <key>     Print one value by dot-notation key
//   config set <key> <v> Set one value and save
//   config keys          List all available keys
//   config init          Write a default config file
//
// None of these commands need a reachable backend.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nanochat/nanochat-go/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one configuration value and save",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List all available configuration keys",
	Args:  cobra.NoArgs,
	RunE:  runConfigKeys,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Print(cfg.String())
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	if flagConfigPath != "" {
		fmt.Println(flagConfigPath)
		return nil
	}

	path, err := config.ConfigPathTOML()
	if err != nil {
		return err
	}

	fmt.Println(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "(not created yet, run 'nanochat config init')")
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	value, err := cfg.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Println(value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Set(args[0], args[1]); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if path == "" {
		if path, err = config.ConfigPathTOML(); err != nil {
			return err
		}
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}

	fmt.Printf("Set %s = %s\n", args[0], args[1])
	return nil
}

func runConfigKeys(cmd *cobra.Command, args []string) error {
	for _, key := range config.GetAllKeys() {
		fmt.Println(key)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := config.Save(config.Default()); err != nil {
		return err
	}

	fmt.Printf("Wrote default config to %s\n", path)
	fmt.Println("Set your API key with: nanochat config set server.api_key <key>")
	return nil
}
