package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/miladsoleymani/topicmux/internal/quickstart"
)

func newReceiveCmd(a *app) *cobra.Command {
	var (
		maxMessages int
		maxWait     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Receive and complete one bounded batch from the subscription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("max-messages") {
				a.cfg.Receive.MaxMessages = maxMessages
			}
			if cmd.Flags().Changed("max-wait") {
				a.cfg.Receive.MaxWait = maxWait
			}
			if err := a.cfg.Validate(true); err != nil {
				return err
			}

			b, err := a.openBroker()
			if err != nil {
				return err
			}

			sub := a.cfg.SubscriptionRef()
			n, err := quickstart.Receive(cmd.Context(), b, sub, a.cfg.ReceiveOptions(), a.out, a.log)
			a.log.Info("receive finished",
				zap.Stringer("subscription", sub),
				zap.Int("completed", n))

			if cerr := b.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close broker: %w", cerr))
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&maxMessages, "max-messages", "n", 0, "maximum messages to receive (default from config, 20)")
	cmd.Flags().DurationVarP(&maxWait, "max-wait", "w", 0, "receive window (default from config, 5s)")
	return cmd
}
