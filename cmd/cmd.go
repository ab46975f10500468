/*
	Vestry
	Copyright (c) 2025 The Vestry Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package vstcmd facilitates the command line interface (CLI)
// and implements the main().
package vstcmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/vestryhq/vestry/cms"
	"github.com/vestryhq/vestry/vstapp"
	"go.uber.org/zap"
)

func Main(embeddedWebsite fs.FS) {
	cfg, err := loadConfigFile()
	if err != nil {
		cms.Log.Fatal("failed loading config", zap.Error(err))
	}

	ctx := context.Background()

	app, err := vstapp.New(ctx, cfg, embeddedWebsite)
	if err != nil {
		cms.Log.Fatal("failed to run application", zap.Error(err))
	}

	flag.Parse()

	vstapp.TrapSignals()

	// implement standard (CLI-only) flags
	subCommand, subCommandFunc := getStandardSubcommand(app)
	if subCommandFunc != nil {
		if err := checkFlagParsing(); err != nil {
			cms.Log.Fatal("possible syntax error detected", zap.Error(err))
		}
		if err := subCommandFunc(); err != nil {
			cms.Log.Fatal("subcommand failed",
				zap.String("subcommand", subCommand),
				zap.Error(err))
		}
		return
	}

	// check for registered endpoint (API command)
	if remaining := flag.Args(); len(remaining) > 0 {
		if err := app.RunCommand(ctx, remaining); err != nil {
			cms.Log.Fatal("subcommand failed", zap.Error(err))
		}
		return
	}

	// start the application server
	startedServer, err := app.Serve()
	if err != nil {
		cms.Log.Fatal("could not start server", zap.Error(err))
	}

	// once the server is running, open GUI in web browser
	if err := openWebBrowser("http://" + app.ListenAddr()); err != nil {
		cms.Log.Error("could not open web browser", zap.Error(err))
	}

	if startedServer {
		select {}
	}
}

// openWebBrowser opens the web browser to loc, which must be a
// fully-qualified URL including a trailing slash even if there
// is no path (e.g. "http://host/" not "http://host"); if the
// trailing slash is not present, it will be appended.
func openWebBrowser(loc string) error {
	osCommand := map[string][]string{
		"darwin":  {"open"},
		"freebsd": {"xdg-open"},
		"linux":   {"xdg-open"},
		"netbsd":  {"xdg-open"},
		"openbsd": {"xdg-open"},
		"windows": {"cmd", "/c", "start"},
	}

	// ensure URL is valid and path ends with a trailing slash
	u, err := url.Parse(loc)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	loc = u.String()

	if runtime.GOOS == "windows" {
		// escape characters not allowed by cmd
		loc = strings.ReplaceAll(loc, "&", `^&`)
	}

	all := append(osCommand[runtime.GOOS], loc) //nolint:gocritic
	exe := all[0]
	args := all[1:]

	cms.Log.Info("opening web browser to application",
		zap.Strings("command", append([]string{exe}, args...)))

	cmd := exec.Command(exe, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Gets CLI-only commands.
func getStandardSubcommand(app *vstapp.App) (string, func() error) {
	standardCommands := map[string]func() error{
		"serve": func() error {
			if err := app.MustServe(); err != nil {
				return err
			}
			select {}
		},
		"help": func() error { //nolint:unparam
			fmt.Println(app.CommandLineHelp())
			return nil
		},
		"version": func() error {
			fmt.Println("vestry " + vstapp.Version)
			return nil
		},
	}

	if len(flag.Args()) > 0 {
		subCommand := flag.Arg(0)
		subCommandFunc, ok := standardCommands[subCommand]
		if ok {
			return subCommand, subCommandFunc
		}
	}
	return "", nil
}

// checkFlagParsing returns an error if it looks like the
// program may have been invoked with the flags in the
// wrong place; flags must go before positional arguments
// for the standard library parser to see them. Only for use
// when a standard command is present.
func checkFlagParsing() error {
	if len(os.Args) > 2 && flag.NFlag() == 0 {
		return errors.New("it looks like you intended to specify flags, but none were parsed; make sure flags go before positional arguments")
	}
	return nil
}

func loadConfigFile() (*vstapp.Config, error) {
	cfgBytes, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if configFile == vstapp.DefaultConfigFilePath() {
				err = nil
			}
			return new(vstapp.Config), err
		}
	}
	var cfg *vstapp.Config
	err = json.Unmarshal(cfgBytes, &cfg)
	return cfg, err
}

var configFile = vstapp.DefaultConfigFilePath()

func init() {
	flag.StringVar(&configFile, "config", configFile, "path to the config file")
}
