package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"study-agents/api/internal/handle"
	"study-agents/api/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Example: `
# homework photo
curl -s localhost:8000/v1/homework/analyze -d '{"kind":"image","data_base64":"..."}'

# math with web grounding
curl -s localhost:8000/v1/math/solve -d '{"problem":"GDP of France in 2023 divided by population","use_real_world_data":true}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		a.startJanitor(ctx)

		// one registry for the whole process: last start wins
		reg := session.NewRegistry(a.engine, a.caller, a.log)
		h := handle.New(a.orch, reg, a.log, a.handleOptions()...)
		return a.serveHTTP(ctx, h.Router())
	},
}
