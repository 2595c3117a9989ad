// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/settingstore/config"
	"github.com/cardinalhq/settingstore/internal/dbopen"
	"github.com/cardinalhq/settingstore/internal/identity"
	"github.com/cardinalhq/settingstore/settings"
)

type storeFlags struct {
	identityID  int64
	pkg         string
	useOverride bool
}

func (f *storeFlags) register(cmd *cobra.Command, overrideHelp string) {
	cmd.Flags().Int64Var(&f.identityID, "identity", 0, "Identity to act on behalf of (0 for none)")
	cmd.Flags().StringVar(&f.pkg, "package", "", "Package of the setting (defaults to store.default_package)")
	if overrideHelp != "" {
		cmd.Flags().BoolVar(&f.useOverride, "override", false, overrideHelp)
	}
}

func (f *storeFlags) options() []settings.Option {
	return []settings.Option{
		settings.WithPackage(f.pkg),
		settings.WithOverride(f.useOverride),
	}
}

var (
	getFlags    storeFlags
	getDefault  string
	setFlags    storeFlags
	setAsJSON   bool
	deleteFlags storeFlags
	listFlags   storeFlags
	groupsSkip  []string
	groupsPkgs  []string
	groupPkg    string
)

func init() {
	getFlags.register(getCmd, "Consider the identity's override")
	getCmd.Flags().StringVar(&getDefault, "default", "", "Value printed when the setting has no value")

	setFlags.register(setCmd, "Write the identity's override instead of the default value")
	setCmd.Flags().BoolVar(&setAsJSON, "json", false, "Parse VALUE as JSON")

	deleteFlags.register(deleteCmd, "Delete only the identity's override")
	listFlags.register(listCmd, "")

	groupsCmd.Flags().StringSliceVar(&groupsSkip, "skip", nil, "Group prefixes to leave out")
	groupsCmd.Flags().StringSliceVar(&groupsPkgs, "packages", nil, "Only list groups of these packages")
	groupCmd.Flags().StringVar(&groupPkg, "package", "", "Package of the group (defaults to store.default_package)")

	rootCmd.AddCommand(getCmd, setCmd, deleteCmd, listCmd, groupsCmd, groupCmd)
}

// withStore opens the configured repository and runs fn with a Store acting
// for the identity in flags. Changes are saved when fn succeeds.
func withStore(flags *storeFlags, fn func(ctx context.Context, store *settings.Store, repo settings.Repository) error) error {
	setupCLILogging()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := handleSignals(context.Background())
	defer cancel()

	repo, closeRepo, err := openRepository(ctx, cfg, dbopen.WarnOnMigrationMismatch())
	if err != nil {
		return fmt.Errorf("failed to open settings repository: %w", err)
	}
	defer closeRepo()

	var identityID int64
	if flags != nil {
		identityID = flags.identityID
	}
	store := settings.New(repo, identity.Static(identityID), settings.WithDefaultPackage(cfg.Store.DefaultPackage))
	if err := fn(ctx, store, repo); err != nil {
		return err
	}
	if _, err := store.Save(ctx); err != nil {
		return err
	}
	return nil
}

// setupCLILogging keeps stdout free for command output.
func setupCLILogging() {
	level := slog.LevelWarn
	if os.Getenv("DEBUG") != "" || os.Getenv("SETTINGSTORE_DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseCLIValue returns raw unchanged unless asJSON is set.
func parseCLIValue(raw string, asJSON bool) (any, error) {
	if !asJSON {
		return raw, nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON value: %w", err)
	}
	return v, nil
}

var getCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print the effective value of a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var def any
		if cmd.Flags().Changed("default") {
			def = getDefault
		}
		opts := getFlags.options()
		if !cmd.Flags().Changed("override") {
			opts[1] = settings.WithOverride(true)
		}
		return withStore(&getFlags, func(ctx context.Context, store *settings.Store, _ settings.Repository) error {
			v, err := store.Get(ctx, args[0], def, opts...)
			if err != nil {
				return err
			}
			if v == nil {
				return fmt.Errorf("setting %q has no value", args[0])
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		})
	},
}

var setCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Write a setting value",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		value, err := parseCLIValue(args[1], setAsJSON)
		if err != nil {
			return err
		}
		return withStore(&setFlags, func(ctx context.Context, store *settings.Store, _ settings.Repository) error {
			return store.Set(ctx, args[0], value, setFlags.options()...)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete KEY",
	Short: "Delete a setting, or only an identity's override with --override",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return withStore(&deleteFlags, func(ctx context.Context, store *settings.Store, _ settings.Repository) error {
			return store.Delete(ctx, args[0], deleteFlags.options()...)
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every setting as seen by an identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(&listFlags, func(ctx context.Context, store *settings.Store, _ settings.Repository) error {
			all, err := store.All(ctx)
			if err != nil {
				return err
			}
			if listFlags.pkg != "" {
				return printJSON(cmd.OutOrStdout(), all[listFlags.pkg])
			}
			return printJSON(cmd.OutOrStdout(), all)
		})
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List settings groups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(nil, func(ctx context.Context, _ *settings.Store, repo settings.Repository) error {
			groups, err := repo.SettingsGroups(ctx, groupsSkip, groupsPkgs)
			if err != nil {
				return err
			}
			for _, g := range groups {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", g.Package.Original, g.Group); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var groupCmd = &cobra.Command{
	Use:   "group GROUP",
	Short: "Print the settings of one group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(nil, func(ctx context.Context, store *settings.Store, repo settings.Repository) error {
			pkg := groupPkg
			if pkg == "" {
				pkg = store.DefaultPackageName()
			}
			rows, err := repo.SettingsForGroup(ctx, strings.TrimSpace(args[0]), pkg)
			if err != nil {
				return err
			}
			out := map[string]*string{}
			for _, r := range rows {
				if _, ok := out[r.Name]; !ok {
					out[r.Name] = r.DefaultValue
				}
				if r.ValueID != nil && !r.Owner.Valid && r.Value != nil {
					out[r.Name] = r.Value
				}
			}
			return printJSON(cmd.OutOrStdout(), out)
		})
	},
}
