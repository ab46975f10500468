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

package main

import (
	"embed"

	vstcmd "github.com/vestryhq/vestry/cmd"
)

// Package main is the entry point of the application.
func main() {
	vstcmd.Main(embeddedWebsite)
}

// The frontend assets. These are always embedded into the binary even
// if the config says to serve the website from a folder on disk
// (usually for dev). It is defined here because go:embed cannot reach
// into a parent directory.
//
//go:embed all:frontend
var embeddedWebsite embed.FS
