package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/miladsoleymani/topicmux/core"
	"github.com/miladsoleymani/topicmux/internal/quickstart"
)

func newPublishCmd(a *app) *cobra.Command {
	var body, subject string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Send one message to the topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(false); err != nil {
				return err
			}
			if cmd.Flags().Changed("body") {
				a.cfg.Message.Body = body
			}
			if cmd.Flags().Changed("subject") {
				a.cfg.Message.Subject = subject
			}

			b, err := a.openBroker()
			if err != nil {
				return err
			}

			env := core.NewEnvelope([]byte(a.cfg.Message.Body))
			if ct := a.cfg.Message.ContentType; ct != "" {
				env.WithHeader(core.HeaderContentType, ct)
			}
			if s := a.cfg.Message.Subject; s != "" {
				env.WithHeader(core.HeaderSubject, s)
			}

			if err := quickstart.Publish(cmd.Context(), b, a.cfg.Topic, env, a.out); err != nil {
				a.closeBroker(b)
				return err
			}
			a.log.Info("message sent",
				zap.String("topic", a.cfg.Topic),
				zap.ByteString("message_id", env.Key()))

			if err := b.Close(); err != nil {
				return fmt.Errorf("close broker: %w", err)
			}
			_, err = fmt.Fprintln(a.out, quickstart.Separator)
			return err
		},
	}

	cmd.Flags().StringVar(&body, "body", "", "message body (defaults to the tutorial text)")
	cmd.Flags().StringVar(&subject, "subject", "", "message subject")
	return cmd
}
