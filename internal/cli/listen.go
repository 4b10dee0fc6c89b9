package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/miladsoleymani/topicmux/core"
	"github.com/miladsoleymani/topicmux/core/middleware"
)

func newListenCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print and complete messages from the subscription until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(true); err != nil {
				return err
			}

			b, err := a.openBroker()
			if err != nil {
				return err
			}

			counter := middleware.NewCounter()
			r := a.newListenRouter(b, counter, asJSON)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sub := a.cfg.SubscriptionRef()
			a.log.Info("listening", zap.Stringer("subscription", sub))
			err = r.Start(ctx)

			s := counter.Snapshot(sub)
			a.log.Info("listener stopped",
				zap.Int("processed", s.Processed),
				zap.Int("failed", s.Failed))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "decode bodies as JSON before printing")
	return cmd
}

// newListenRouter wires the subscription handler and middleware.
func (a *app) newListenRouter(b core.Broker, counter *middleware.Counter, asJSON bool) *core.Router {
	r := core.New(b)
	r.Use(middleware.Recovery(a.log))
	r.Use(middleware.Logging(a.log))
	r.Use(middleware.Metrics(counter))

	if asJSON {
		r.SetBinder(core.JSONBinder{})
	} else {
		r.SetBinder(core.TextBinder{})
	}

	r.Handle(a.cfg.Topic, a.cfg.Subscription, func(c core.Context) error {
		var body any
		if asJSON {
			if err := c.Bind(&body); err != nil {
				return err
			}
		} else {
			var s string
			if err := c.Bind(&s); err != nil {
				return err
			}
			body = s
		}
		if _, err := fmt.Fprintf(a.out, "Received: %v\n", body); err != nil {
			return err
		}
		return c.Ack()
	})
	return r
}
