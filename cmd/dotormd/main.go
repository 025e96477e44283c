// Command dotormd is the process entrypoint: it loads configuration, opens
// the configured dialect's database, builds the field registries, schema
// registry, and ORM models for the example domain schema in the models
// package, and serves the generated REST surface over gorilla/mux.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"github.com/dotorm/dotorm/ddl"
	"github.com/dotorm/dotorm/dialect"
	dsql "github.com/dotorm/dotorm/dialect/sql"
	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/models"
	"github.com/dotorm/dotorm/orm"
	"github.com/dotorm/dotorm/router"
	"github.com/dotorm/dotorm/session"
	"github.com/dotorm/dotorm/settingscache"
	"github.com/dotorm/dotorm/validation"
)

// Config is loaded from an optional YAML file first, then overridden by
// environment variables, so a checked-in config.yaml can hold non-secret
// defaults while deployment secrets stay in the environment.
type Config struct {
	ListenAddr  string `yaml:"listen_addr" env:"DOTORMD_LISTEN_ADDR" envDefault:":8080"`
	Dialect     string `yaml:"dialect" env:"DOTORMD_DIALECT" envDefault:"postgres"`
	DatabaseURL string `yaml:"database_url" env:"DOTORMD_DATABASE_URL,required"`
	JWTSecret   string `yaml:"jwt_secret" env:"DOTORMD_JWT_SECRET,required"`
	PoolSize    int    `yaml:"pool_size" env:"DOTORMD_POOL_SIZE" envDefault:"10"`
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// registries is every table this process serves, keyed by table name, the
// same map validation.Registry.Build and the relation-hydration targets
// both need.
func registries() map[string]*field.Registry {
	return map[string]*field.Registry{
		"language":        models.LanguageFields(),
		"role":            models.RoleFields(),
		"user":            models.UserFields(),
		"project":         models.ProjectFields(),
		"task":            models.TaskFields(),
		"tag":             models.TagFields(),
		"attachment":      models.AttachmentFields(),
		"chat_thread":     models.ChatThreadFields(),
		"chat_message":    models.ChatMessageFields(),
		"system_settings": settingscache.Fields(),
	}
}

func migrate(ctx context.Context, d dialect.Dialect, sess session.Session, tables map[string]*field.Registry) error {
	engine := ddl.New(d)
	var allFKs []ddl.ForeignKey
	for _, r := range tables {
		fks, err := engine.CreateTable(ctx, sess, r)
		if err != nil {
			return fmt.Errorf("create table %s: %w", r.Table, err)
		}
		allFKs = append(allFKs, fks...)
	}
	if err := engine.ApplyForeignKeys(ctx, sess, allFKs); err != nil {
		return fmt.Errorf("apply foreign keys: %w", err)
	}
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional, overridden by DOTORMD_* env vars)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	d, err := dialect.Get(cfg.Dialect)
	if err != nil {
		slog.Error("unsupported dialect", "dialect", cfg.Dialect, "error", err)
		os.Exit(1)
	}

	db, err := sql.Open(cfg.Dialect, cfg.DatabaseURL)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	driver := dsql.OpenDB(db, d)
	driver.SetPoolSize(cfg.PoolSize)
	sess := session.NewNoTransactionSession(driver, slog.Default())

	tables := registries()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := migrate(ctx, d, sess, tables); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	modelsByTable := make(map[string]*orm.Model, len(tables))
	for table, r := range tables {
		modelsByTable[table] = orm.NewModel(d, r, sess)
	}

	settingsCache := settingscache.New()
	settings := settingscache.NewSettings(modelsByTable["system_settings"], settingsCache)
	settings.EnsureDefaults(context.Background(), []settingscache.Default{
		{Key: "base_url", Value: cfg.ListenAddr, Module: "general", IsSystem: true, CacheTTL: -1},
	})

	schemas := validation.NewRegistry()
	if err := schemas.Build(tables); err != nil {
		slog.Error("build schema registry", "error", err)
		os.Exit(1)
	}

	guard := router.NewJWTGuard([]byte(cfg.JWTSecret))
	rt := router.New(mux.NewRouter(), guard)

	rt.Register(router.Resource{
		Table:   "user",
		Prefix:  modelsByTable["user"].Registry.RoutePrefix(),
		Model:   modelsByTable["user"],
		Related: map[string]*orm.Model{"language": modelsByTable["language"], "roles": modelsByTable["role"]},
		Schemas: schemas,
	})
	rt.Register(router.Resource{
		Table:   "role",
		Prefix:  modelsByTable["role"].Registry.RoutePrefix(),
		Model:   modelsByTable["role"],
		Schemas: schemas,
	})
	rt.Register(router.Resource{
		Table:   "project",
		Prefix:  modelsByTable["project"].Registry.RoutePrefix(),
		Model:   modelsByTable["project"],
		Related: map[string]*orm.Model{"owner": modelsByTable["user"], "tasks": modelsByTable["task"]},
		Schemas: schemas,
	})
	rt.Register(router.Resource{
		Table:  "task",
		Prefix: modelsByTable["task"].Registry.RoutePrefix(),
		Model:  modelsByTable["task"],
		Related: map[string]*orm.Model{
			"project":  modelsByTable["project"],
			"assignee": modelsByTable["user"],
			"tags":     modelsByTable["tag"],
		},
		Schemas: schemas,
	})
	rt.Register(router.Resource{
		Table:   "chat_message",
		Prefix:  modelsByTable["chat_message"].Registry.RoutePrefix(),
		Model:   modelsByTable["chat_message"],
		Related: map[string]*orm.Model{"thread": modelsByTable["chat_thread"], "sender": modelsByTable["user"]},
		Schemas: schemas,
	})

	slog.Info("listening", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, rt.Mux()); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
