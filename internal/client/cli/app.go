package cli

import (
	"bufio"
	"context"
	"database/sql"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/client/client"
	"github.com/dmitrijs2005/authkeeper/internal/client/config"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// api is the part of client.HTTPClient the commands use.
type api interface {
	client.Client
	Ping(ctx context.Context) error
}

type App struct {
	config *config.Config
	api    api
	db     *sql.DB
	email  string

	mu   sync.Mutex
	Mode Mode

	reader *bufio.Reader
	out    io.Writer
}

func NewApp(c *config.Config) (*App, error) {

	ctx := context.Background()

	store, db, err := client.OpenTokenStore(ctx, c.TokenDBPath)
	if err != nil {
		log.Printf("error initializing database: %s", err.Error())
		return nil, err
	}

	a := &App{
		config: c,
		api:    client.NewHTTPClient(c.ServerURL, c.RequestTimeout, store),
		db:     db,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}

	if t, err := store.Load(ctx); err == nil && t != nil {
		a.email = t.Email
	}
	return a, nil
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Mode != mode {
		a.Mode = mode
		log.Printf("Switched to %s mode\n", mode)
	}
}

func (a *App) Run(ctx context.Context) {
	defer a.db.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Println("Welcome to AuthKeeper CLI (type 'help' for commands)")
	go a.StartOnlineStatusWatcher(ctx, 5*time.Second)

	runREPL(ctx, a, a.status, a.reader)
}

func (a *App) isLoggedIn() bool {
	return a.email != ""
}

func (a *App) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := a.api.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	a.probe(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}
