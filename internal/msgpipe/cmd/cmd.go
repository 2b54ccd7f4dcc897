// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

// Package cmd builds the msgpipe command tree.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/innovationmech/msgpipe/internal/msgpipe/cmd/audit"
	"github.com/innovationmech/msgpipe/internal/msgpipe/cmd/global"
	"github.com/innovationmech/msgpipe/internal/msgpipe/cmd/replay"
	"github.com/innovationmech/msgpipe/internal/msgpipe/cmd/serve"
	"github.com/innovationmech/msgpipe/internal/msgpipe/cmd/version"
)

// NewRootCommand creates the msgpipe root command.
func NewRootCommand() *cobra.Command {
	g := &global.Options{}
	cmd := &cobra.Command{
		Use:           "msgpipe",
		Short:         "msgpipe message pipeline server",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.ConfigDir, "config-dir", ".", "directory holding msgpipe.yaml and its layers")
	cmd.PersistentFlags().StringVar(&g.Env, "env", "", "environment layer to load, e.g. dev reads msgpipe.dev.yaml")

	cmd.AddCommand(
		serve.NewServeCmd(g),
		replay.NewReplayCmd(g),
		audit.NewAuditCmd(g),
		version.NewVersionCmd(),
	)
	return cmd
}
