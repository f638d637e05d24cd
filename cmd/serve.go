package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mezonai/circlepay/api"
	"github.com/mezonai/circlepay/events"
	"github.com/mezonai/circlepay/exception"
	"github.com/mezonai/circlepay/logx"
	"github.com/mezonai/circlepay/network"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, metrics and gRPC health",
		Long: `Serve the ledger over HTTP together with Prometheus metrics and gRPC health.

The serving process holds the store open, so while it runs every other command
must reach the ledger through it:

  circlepay --server http://127.0.0.1:8080 pay --caller alice --to bob --amount 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *cliOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := events.NewEventBus()
	ld, closeFn, err := opts.openLedger(bus)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := ld.SyncGauges(); err != nil {
		return fmt.Errorf("failed to seed ledger gauges: %w", err)
	}

	subID, ch := bus.Subscribe()
	defer bus.Unsubscribe(subID)
	exception.SafeGo("EventLogger", func() {
		logEvents(ch)
	})
	logx.Info("SERVE", fmt.Sprintf("Event logger attached | subscribers=%d", bus.GetTotalSubscriptions()))

	healthSrv := network.NewHealthServer(opts.nodeCfg.API.GRPCAddr, ld)
	grpcErr := make(chan error, 1)
	exception.SafeGo("GrpcHealthServer", func() {
		err := healthSrv.Start(ctx)
		if err != nil {
			cancel()
		}
		grpcErr <- err
	})

	apiSrv := api.NewAPIServer(ld, opts.nodeCfg.API.HTTPAddr)
	apiErr := apiSrv.Start(ctx)
	cancel()
	if err := <-grpcErr; err != nil {
		return fmt.Errorf("grpc health stopped: %w", err)
	}
	if apiErr != nil {
		return fmt.Errorf("http api stopped: %w", apiErr)
	}
	return nil
}

// logEvents mirrors ledger events into the log until the channel is closed
func logEvents(ch <-chan events.LedgerEvent) {
	for ev := range ch {
		switch e := ev.(type) {
		case *events.OperationCommitted:
			logx.Debug("EVENT", fmt.Sprintf("%s committed | caller=%s | tx_id=%d | height=%d", e.Op(), e.Caller(), e.TxID(), e.Height()))
		case *events.OperationRejected:
			logx.Info("EVENT", fmt.Sprintf("%s rejected | caller=%s | code=%d (%s)", e.Op(), e.Caller(), e.Code(), e.Code()))
		}
	}
}
