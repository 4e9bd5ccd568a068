package bot

import (
	"context"

	"github.com/jmoiron/sqlx"

	"nextmsgbot/core/bootstrap"
	coretelegram "nextmsgbot/core/telegram"
	"nextmsgbot/core/telegram/commands"
	"nextmsgbot/core/telegram/router"
	"nextmsgbot/core/telegram/state"
	"nextmsgbot/storage"

	tele "gopkg.in/telebot.v4"
)

// App wires storage, conversation state and Telegram handlers together.
type App struct {
	cfg *Config
	db  *sqlx.DB

	users    *storage.UserStore
	channels *storage.ChannelStore
	bindings *storage.BindingStore

	states     *state.Manager
	msgr       *BotMessenger
	wizard     *Wizard
	dispatcher *Dispatcher
	gate       *Gate
	info       *Commands
	registry   *coretelegram.Registry
}

// Bootstrap initializes the infrastructure and builds the application graph.
func Bootstrap(cfg *Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	app := &App{cfg: cfg, db: res.DB}
	app.users = storage.NewUserStore(res.DB)
	app.channels = storage.NewChannelStore(res.DB)
	app.bindings = storage.NewBindingStore(res.DB)
	app.states = state.NewManager(storage.NewStateStore(res.DB))
	app.msgr = NewBotMessenger()
	app.wizard = NewWizard(app.states, app.channels, app.bindings, app.msgr,
		cfg.Bot.ArchiveChannelID, cfg.Bot.MaxChannelsPerUser)
	app.dispatcher = NewDispatcher(app.bindings, app.msgr, cfg.Bot.ArchiveChannelID)
	app.info = NewCommands(app.channels, app.bindings, app.states)
	app.registry = app.buildRegistry()
	app.gate = NewGate(app.msgr, app.states, cfg.Bot.AdminChannelID,
		cfg.Bot.AdminInviteURL, app.registry.GateExemptCommands())
	return app, nil
}

func (a *App) buildRegistry() *coretelegram.Registry {
	reg := coretelegram.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.info.Start,
		Description: "Start the bot",
		GateExempt:  true,
	})
	reg.RegisterCommand("/configure", commands.Command{
		Handler:     a.wizard.StartConfigure,
		Description: "Bind an automatic response to a channel",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.wizard.Cancel,
		Description: "Abort the current setup",
	})
	reg.RegisterCommand("/status", commands.Command{
		Handler:     a.info.Status,
		Description: "Show your configured channels",
	})
	reg.RegisterCommand("/commands", commands.Command{
		Handler:     a.info.List,
		Description: "List available commands",
		Hidden:      true,
	})

	_ = reg.RegisterCallback(cbConfigure, a.wizard.StartConfigure)
	_ = reg.RegisterCallback(cbCancel, a.wizard.Cancel)
	_ = reg.RegisterCallback(cbCommands, a.info.List)
	_ = reg.RegisterCallback(cbReplyMode, a.wizard.HandleReplyMode)

	reg.SetCallbackNotFound(a.info.UnknownCallback())
	reg.SetTextFallback(a.info.UnknownText())
	return reg
}

// TelegramRunOptions builds the bot runtime wiring consumed by core/cmd.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()

	mws := coretelegram.DefaultMiddlewares(core, nil)
	mws = append(mws,
		coretelegram.Middleware{Name: "classifier", Use: ClassifierMiddleware(a.cfg.Bot.ArchiveChannelID)},
		coretelegram.Middleware{Name: "resolve_user", Use: ResolveUserMiddleware(a.users)},
		coretelegram.Middleware{Name: "access_gate", Use: a.gate.Middleware()},
	)

	routes := router.CommandRoutes(a.registry)
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{
		NotFound: a.info.UnknownCallback(),
	}))
	routes = append(routes, router.TextRoutes(a.states, a.registry, router.TextOptions{
		LocalUserID: func(c tele.Context) (int64, bool) {
			u, ok := LocalUser(c)
			return u.ID, ok
		},
		ChannelPost:  a.dispatcher.HandleChannelPost,
		UnknownText:  a.info.UnknownText(),
		UnknownMedia: a.info.UnknownMedia(),
	})...)
	routes = append(routes, router.ChannelPostRoute(a.dispatcher.HandleChannelPost))

	return coretelegram.RunOptions{
		Config:      core,
		Registry:    a.registry,
		Middlewares: mws,
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.msgr.Bind(rt.Bot)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			return a.Close()
		},
	}, nil
}

// Close releases database resources.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
