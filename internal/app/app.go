package app

import (
	"context"

	"github.com/carousell/ct-go/pkg/logger"
	"github.com/nguyentranbao-ct/chat-client/internal/config"
	"github.com/nguyentranbao-ct/chat-client/internal/models"
	"github.com/nguyentranbao-ct/chat-client/internal/repo/chatapi"
	"github.com/nguyentranbao-ct/chat-client/internal/repo/socket"
	"github.com/nguyentranbao-ct/chat-client/internal/store"
	"github.com/nguyentranbao-ct/chat-client/internal/usecase"
	"github.com/nguyentranbao-ct/chat-client/pkg/crypto"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"
)

func Invoke(funcs ...any) *fx.App {
	log := logger.MustNamed("app")
	conf := config.MustLoad()
	log.Debugw("config loaded", log.Reflect("config", conf))
	return fx.New(
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{
				Logger: log.Unwrap().Desugar(),
			}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Provide(
			newCryptoClient,
			store.NewMessageStore,

			chatapi.NewClient,
			socket.NewClient,
			asTransport,

			usecase.NewSendUsecase,
			usecase.NewProjectionUsecase,
			usecase.NewTypingUsecase,
			usecase.NewHistoryUsecase,
			usecase.NewMessageActionsUsecase,
			usecase.NewReadReceiptUsecase,
			usecase.NewEphemeralUsecase,
		),
		fx.Supply(conf),
		fx.Invoke(ConnectTransport),
		fx.Invoke(StartEphemeralSweep),
		fx.Invoke(funcs...),
	)
}

func newCryptoClient(conf *config.Config) (crypto.Client, error) {
	return crypto.NewClient(conf.Crypto.Key)
}

func asTransport(client *socket.Client) usecase.RealtimeTransport {
	return client
}

// StartEphemeralSweep ties the expiry sweeper to the application lifecycle.
func StartEphemeralSweep(lc fx.Lifecycle, sweeper usecase.EphemeralUsecase) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sweeper.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			sweeper.Stop()
			return nil
		},
	})
}

// ConnectTransport routes inbound socket events into the sync core and ties
// the connection to the application lifecycle.
func ConnectTransport(
	lc fx.Lifecycle,
	client *socket.Client,
	sender usecase.SendUsecase,
	typing usecase.TypingUsecase,
) {
	client.SetHandlers(socket.Handlers{
		OnMessage: func(in models.InboundMessage) {
			sender.HandleServerMessage(context.Background(), in)
		},
		OnTyping: func(ev models.TypingEvent, active bool) {
			typing.HandleEvent(ev, active)
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Connect(ctx)
		},
		OnStop: func(ctx context.Context) error {
			sender.Close()
			return client.Close()
		},
	})
}
