package servicebus

import (
	azlog "github.com/Azure/azure-sdk-for-go/sdk/azcore/log"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"go.uber.org/zap"
)

// EnableSDKLogging routes the SDK's connection, auth, sender and receiver
// events into logger at debug level. The azcore listener is process-wide.
func EnableSDKLogging(logger *zap.Logger) {
	l := logger.Named("azservicebus")
	azlog.SetEvents(
		azservicebus.EventConn,
		azservicebus.EventAuth,
		azservicebus.EventSender,
		azservicebus.EventReceiver,
	)
	azlog.SetListener(func(ev azlog.Event, msg string) {
		l.Debug(msg, zap.String("event", string(ev)))
	})
}

// DisableSDKLogging removes the listener installed by EnableSDKLogging.
func DisableSDKLogging() {
	azlog.SetListener(nil)
}
