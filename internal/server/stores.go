package server

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/furniro/apiserver/config"
	"github.com/furniro/apiserver/internal/db"
	"github.com/furniro/apiserver/internal/services"
	"github.com/furniro/apiserver/internal/store"
	"github.com/furniro/apiserver/internal/store/memory"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Stores holds the repositories selected by the database driver.
type Stores struct {
	Users services.UserRepository
	News  services.NewsRepository
	db    *sql.DB
}

// OpenStores connects the repositories for cfg.Database.Driver.
func OpenStores(ctx context.Context, cfg config.Config) (*Stores, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Database.Driver)) {
	case "", DriverPostgres:
		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Users: store.NewUserRepository(dbConn),
			News:  store.NewNewsRepository(dbConn),
			db:    dbConn,
		}, nil
	case DriverMemory:
		return &Stores{
			Users: memory.NewUserRepository(),
			News:  memory.NewNewsRepository(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// Close releases the database pool, if any.
func (s *Stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
