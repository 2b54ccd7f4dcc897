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

package serve

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/innovationmech/msgpipe/internal/msgpipe/cmd/global"
	"github.com/innovationmech/msgpipe/internal/msgpipe/deps"
	"github.com/innovationmech/msgpipe/pkg/logger"
	"github.com/innovationmech/msgpipe/pkg/testrun"
)

// ShutdownTimeout bounds the wait for in-flight requests on exit.
const ShutdownTimeout = 10 * time.Second

// NewServeCmd creates the 'serve' command.
func NewServeCmd(g *global.Options) *cobra.Command {
	var record string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the message endpoint",
		Long: `Start the HTTP message endpoint over the demo users domain.

Messages are accepted as POST /{kind}/{contentType} with a JSON body and are
persisted to the configured repository backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), g, record)
		},
	}
	cmd.Flags().StringVar(&record, "record", "", "record every dispatch into this test run file on shutdown")
	return cmd
}

// Run serves until ctx is done (the cli package cancels it on SIGINT and SIGTERM), then shuts the endpoint down and, when record
// is set, saves the recorded test run.
func Run(ctx context.Context, g *global.Options, record string) error {
	log := logger.GetLogger()
	settings, err := g.Settings()
	if err != nil {
		return err
	}

	var opts []deps.Option
	var rec *testrun.Recorder
	if record != "" {
		rec = testrun.NewRecorder(testrun.MetadataStep{
			Name:       filepath.Base(record),
			RecordedAt: time.Now().UTC(),
			Tags:       []string{"serve"},
		})
		opts = append(opts, deps.WithRecorder(rec))
	}
	d, err := deps.NewDependencies(settings, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Warn("close repository", zap.Error(err))
		}
	}()

	if err := d.Endpoint.Start(ctx); err != nil {
		return err
	}
	log.Info("msgpipe is serving", zap.String("address", d.Endpoint.Addr()))

	<-ctx.Done()
	log.Info("Shutdown signal received, stopping endpoint...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := d.Endpoint.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stop endpoint: %w", err)
	}

	if rec != nil {
		run := rec.Run()
		if err := testrun.Save(record, run, nil); err != nil {
			return fmt.Errorf("save test run: %w", err)
		}
		log.Info("test run saved", zap.String("path", record), zap.Int("invocations", len(run.Invocations())))
	}
	return nil
}
