// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - The "config" command.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jeranaias/mashchat/internal/config"
)

// ErrConfigExists is returned by "config init" when a file is present.
var ErrConfigExists = errors.New("config file already exists (use --force to overwrite)")

// HandleConfig runs "config show|path|init". show prints cfg with secrets
// redacted; init writes cfg to the default TOML path.
func HandleConfig(w io.Writer, cfg *config.Config, args Args) error {
	switch args.Subcommand {
	case "", "show":
		fmt.Fprint(w, cfg.String())
		return nil

	case "path":
		return handleConfigPath(w)

	case "init":
		return handleConfigInit(w, cfg, NewArgParser(args.Raw).BoolFlag("force"))

	default:
		return fmt.Errorf("unknown config subcommand: %s", args.Subcommand)
	}
}

func handleConfigPath(w io.Writer) error {
	if path, ok := config.FindConfigFile(); ok {
		fmt.Fprintln(w, path)
		return nil
	}
	path, err := config.ConfigPathTOML()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, path)
	fmt.Fprintln(w, DimStyle.Render("(file does not exist; run 'mashchat config init')"))
	return nil
}

func handleConfigInit(w io.Writer, cfg *config.Config, force bool) error {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !force {
		return ErrConfigExists
	}
	if err := config.Save(cfg); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s wrote %s\n", RenderStatus("ok"), path)
	return nil
}
