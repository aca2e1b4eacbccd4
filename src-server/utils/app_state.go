package utils

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nlcal/src-server/creator"
	"nlcal/src-server/extract"
	"nlcal/src-server/ical"
	"nlcal/src-server/model"
	"nlcal/src-server/tz"

	"github.com/bwmarrin/discordgo"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type AppState struct {
	Config      *Config
	RawDB       *sql.DB
	BunDB       *bun.DB
	DgSession   *discordgo.Session
	When        *when.Parser
	MetricChans *Metric

	Resolver *tz.Resolver
	Client   *extract.Client
	Creator  *creator.Creator
	History  *model.HistoryStore

	// will be send to Discord
	AppCmdInfo map[string]*discordgo.ApplicationCommand
	// handling commands from Discord WSAPI
	AppCmdHandler map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) error
	appCmdMu      sync.RWMutex

	startedAt          time.Time
	shutdownMu         sync.Mutex
	gracefulShutdownCh []*chan struct{}
}

// NewAppState wires the extraction pipeline from the config. The database is
// opened separately by OpenDatabase, only the server needs it.
func NewAppState(config *Config) *AppState {
	as := &AppState{
		Config:        config,
		startedAt:     time.Now(),
		MetricChans:   NewMetric(),
		AppCmdInfo:    make(map[string]*discordgo.ApplicationCommand),
		AppCmdHandler: make(map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) error),
	}

	// date parser
	as.When = when.New(nil)
	as.When.Add(en.All...)
	as.When.Add(common.All...)

	var transport extract.Transport
	switch config.GetLLMProvider() {
	case ProviderOpenAI:
		transport = extract.NewOpenAITransport(config.GetLLMBaseURL(), config.GetLLMApiKey(), config.GetLLMTimeout())
	default:
		transport = extract.NewGeminiTransport(config.GetLLMBaseURL(), config.GetLLMApiKey(), config.GetLLMTimeout())
	}
	as.Client = extract.NewClient(transport,
		extract.WithConfig(config.GetExtractConfig()),
		extract.WithLocation(config.GetLocation()),
		extract.WithMaskedKey(MaskKey(config.GetLLMApiKey())),
		extract.WithRetryHook(as.MetricChans.ObserveRetry),
	)

	as.Resolver = tz.NewResolver(config.GetLocation())
	as.Creator = creator.New(
		as.Client,
		ical.NewBuilder(as.Resolver, as.When, nil),
		ical.NewMerger(config.GetUIDDomain()),
		as.MetricChans,
	)
	return as
}

// OpenDatabase opens the sqlite history database and makes sure the schema
// exists.
func (as *AppState) OpenDatabase(ctx context.Context) error {
	var err error
	as.RawDB, err = sql.Open(sqliteshim.ShimName, as.Config.GetDatabasePath()+"?mode=rwc")
	if err != nil {
		return fmt.Errorf("(*AppState).OpenDatabase: %w", err)
	}
	as.RawDB.SetMaxIdleConns(8)
	as.BunDB = bun.NewDB(as.RawDB, sqlitedialect.New())

	if err := model.CreateSchema(ctx, as.BunDB); err != nil {
		return fmt.Errorf("(*AppState).OpenDatabase: %w", err)
	}
	as.History = model.NewHistoryStore(as.BunDB)
	slog.Debug("database ready", "path", as.Config.GetDatabasePath())
	return nil
}

func (as *AppState) AddAppCmdHandler(name string, handler func(s *discordgo.Session, i *discordgo.InteractionCreate) error) {
	as.appCmdMu.Lock()
	defer as.appCmdMu.Unlock()
	as.AppCmdHandler[name] = handler
}

func (as *AppState) GetAppCmdHandler(name string) (func(s *discordgo.Session, i *discordgo.InteractionCreate) error, bool) {
	as.appCmdMu.RLock()
	defer as.appCmdMu.RUnlock()
	handler, ok := as.AppCmdHandler[name]
	return handler, ok
}

func (as *AppState) AddAppCmdInfo(name string, info *discordgo.ApplicationCommand) {
	as.appCmdMu.Lock()
	defer as.appCmdMu.Unlock()
	as.AppCmdInfo[name] = info
}

// AppCmds lists the registered slash commands, ready for a bulk overwrite.
func (as *AppState) AppCmds() []*discordgo.ApplicationCommand {
	as.appCmdMu.RLock()
	defer as.appCmdMu.RUnlock()
	cmds := make([]*discordgo.ApplicationCommand, 0, len(as.AppCmdInfo))
	for _, info := range as.AppCmdInfo {
		cmds = append(cmds, info)
	}
	return cmds
}

func (as *AppState) GetUptime() time.Duration {
	return time.Since(as.startedAt).Truncate(time.Second)
}

// CreateGracefulShutdownChan hands out a channel that is closed by
// GracefulShutdown. Every background goroutine takes its own.
func (as *AppState) CreateGracefulShutdownChan() *chan struct{} {
	as.shutdownMu.Lock()
	defer as.shutdownMu.Unlock()
	ch := make(chan struct{})
	as.gracefulShutdownCh = append(as.gracefulShutdownCh, &ch)
	return &ch
}

func (as *AppState) GracefulShutdown() {
	as.shutdownMu.Lock()
	for _, ch := range as.gracefulShutdownCh {
		close(*ch)
	}
	as.gracefulShutdownCh = nil
	as.shutdownMu.Unlock()

	if as.DgSession != nil {
		if err := as.DgSession.Close(); err != nil {
			slog.Error("can't close discord session", "error", err)
		}
	}
	if as.BunDB != nil {
		if err := as.BunDB.Close(); err != nil {
			slog.Error("can't close database", "error", err)
		}
	}
	slog.Info("graceful shutdown complete")
}
