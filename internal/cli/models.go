// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models.go - Model catalog commands.
//
// Command tree:
//   models list [--all] [--refresh]
//   models use <id>
//   models hide <id>
//   models show <id>
//   models providers <id>
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nanochat/nanochat-go/internal/model"
	"github.com/nanochat/nanochat-go/internal/util"
)

var (
	modelsFlagAll     bool
	modelsFlagRefresh bool
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage the model catalog",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List models grouped by provider",
	Args:  cobra.NoArgs,
	RunE:  runModelsList,
}

var modelsUseCmd = &cobra.Command{
	Use:   "use <id>",
	Short: "Select the model used for new messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsUse,
}

var modelsHideCmd = &cobra.Command{
	Use:   "hide <id>",
	Short: "Hide a model from listings and selection",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsToggle,
}

var modelsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Unhide a previously hidden model",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsToggle,
}

var modelsProvidersCmd = &cobra.Command{
	Use:   "providers <id>",
	Short: "List the routing providers available for a model",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsProviders,
}

func init() {
	modelsListCmd.Flags().BoolVarP(&modelsFlagAll, "all", "a", false, "include hidden models")
	modelsListCmd.Flags().BoolVar(&modelsFlagRefresh, "refresh", false, "force a catalog refresh from the backend")

	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsUseCmd)
	modelsCmd.AddCommand(modelsHideCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsProvidersCmd)
}

// loadCatalog opens the app and loads the catalog, tolerating a stale fetch.
func loadCatalog(forceRefresh bool) (*App, error) {
	app, err := newApp()
	if err != nil {
		return nil, err
	}

	ctx, cancel := commandContext()
	defer cancel()

	status, err := app.Catalog.Load(ctx, forceRefresh)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to load model catalog: %w", err)
	}
	if status.FetchErr != nil {
		app.Logger.Warn().Err(status.FetchErr).Msg("catalog refresh failed, using cached models")
	}

	return app, nil
}

func runModelsList(cmd *cobra.Command, args []string) error {
	app, err := loadCatalog(modelsFlagRefresh)
	if err != nil {
		return err
	}
	defer app.Close()

	selected := app.Catalog.Selected()

	var models []model.UserModel
	if modelsFlagAll {
		models = app.Catalog.Models()
	} else {
		models = app.Catalog.Visible()
	}

	if len(models) == 0 {
		fmt.Println("No models available.")
		return nil
	}

	// Column width follows the longest display name so CJK names line up.
	nameWidth := 0
	for _, m := range models {
		if w := util.StringWidth(m.Name()); w > nameWidth {
			nameWidth = w
		}
	}

	for _, group := range model.GroupByProvider(models) {
		fmt.Printf("\n%s\n", group.Provider)
		fmt.Println(strings.Repeat("─", len(group.Provider)+2))

		for _, m := range group.Models {
			marker := "  "
			if m.ModelID == selected {
				marker = "* "
			}

			pad := strings.Repeat(" ", nameWidth-util.StringWidth(m.Name())+2)
			line := fmt.Sprintf("%s%s%s%s", marker, m.Name(), pad, m.ModelID)

			var tags []string
			if app.Catalog.IsHidden(m.ModelID) {
				tags = append(tags, "hidden")
			}
			if m.Pinned {
				tags = append(tags, "pinned")
			}
			if m.Capabilities.Reasoning {
				tags = append(tags, "reasoning")
			}
			if len(tags) > 0 {
				line += "  [" + strings.Join(tags, ", ") + "]"
			}

			fmt.Println(line)
		}
	}
	fmt.Printf("\n%d model(s), selected: %s\n", len(models), selected)
	return nil
}

func runModelsUse(cmd *cobra.Command, args []string) error {
	app, err := loadCatalog(false)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Catalog.Select(args[0]); err != nil {
		return err
	}

	fmt.Printf("Selected model: %s\n", args[0])
	return nil
}

// runModelsToggle backs both "hide" and "show"; visibility is a toggle on
// the catalog's hidden set.
func runModelsToggle(cmd *cobra.Command, args []string) error {
	app, err := loadCatalog(false)
	if err != nil {
		return err
	}
	defer app.Close()

	hiding := cmd.Name() == "hide"
	if app.Catalog.IsHidden(args[0]) == hiding {
		fmt.Printf("Model %s is already %s\n", args[0], visibilityWord(hiding))
		return nil
	}

	if err := app.Catalog.ToggleVisibility(args[0]); err != nil {
		return err
	}

	fmt.Printf("Model %s is now %s\n", args[0], visibilityWord(hiding))
	if hiding && app.Catalog.Selected() != "" && app.Catalog.Selected() != args[0] {
		fmt.Printf("Selected model: %s\n", app.Catalog.Selected())
	}
	return nil
}

func visibilityWord(hidden bool) string {
	if hidden {
		return "hidden"
	}
	return "visible"
}

func runModelsProviders(cmd *cobra.Command, args []string) error {
	app, err := loadCatalog(false)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := commandContext()
	defer cancel()

	providers, err := app.Gateway.ListModelProviders(ctx, args[0])
	if err != nil {
		return err
	}

	if len(providers) == 0 {
		fmt.Println("No providers reported for this model.")
		return nil
	}

	for _, p := range providers {
		if p.Name != "" && p.Name != p.ID {
			fmt.Printf("  %s  (%s)\n", p.ID, p.Name)
		} else {
			fmt.Printf("  %s\n", p.ID)
		}
	}
	return nil
}
