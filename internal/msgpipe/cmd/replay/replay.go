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

package replay

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/innovationmech/msgpipe/internal/msgpipe/cmd/global"
	"github.com/innovationmech/msgpipe/internal/msgpipe/deps"
	"github.com/innovationmech/msgpipe/pkg/repository"
	"github.com/innovationmech/msgpipe/pkg/testrun"
)

// NewReplayCmd creates the 'replay' command.
func NewReplayCmd(g *global.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <file>",
		Short: "Replay a recorded test run against the demo service",
		Long: `Replay dispatches every invocation of a test run file and compares the
final status and error with the recorded ones. Replayed messages are kept in
memory and never reach the configured repository.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := g.Settings()
			if err != nil {
				return err
			}
			run, err := testrun.Load(args[0], nil)
			if err != nil {
				return err
			}
			d, err := deps.NewDependencies(settings, deps.WithRepository(repository.NewMemory()))
			if err != nil {
				return err
			}
			defer d.Close()

			report, err := testrun.Replay(cmd.Context(), d.App.Service, run)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			if !report.Passed() {
				return fmt.Errorf("replay of %s: %d of %d invocations did not match",
					args[0], len(report.Mismatches()), len(report.Results))
			}
			return nil
		},
	}
}
