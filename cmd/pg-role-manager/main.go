package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"

	"github.com/tendant/pg-role-manager/pkg/connpool"
	"github.com/tendant/pg-role-manager/pkg/permission"
	"github.com/tendant/pg-role-manager/pkg/registry"
	"github.com/tendant/pg-role-manager/pkg/roledef"
	"github.com/tendant/pg-role-manager/pkg/rolemgr"
)

type PoolConfig struct {
	MaxConns       int32  `env:"POOL_MAX_CONNS" env-default:"10"`
	MaxOverflow    int32  `env:"POOL_MAX_OVERFLOW" env-default:"20"`
	AcquireTimeout int    `env:"POOL_ACQUIRE_TIMEOUT_SECONDS" env-default:"30"`
	ConnMode       string `env:"POOL_CONN_MODE" env-default:"cloudsql"`
	SocketDir      string `env:"CLOUDSQL_SOCKET_DIR" env-default:"/cloudsql"`
	TCPHost        string `env:"POOL_TCP_HOST" env-default:"localhost"`
	TCPPort        uint16 `env:"POOL_TCP_PORT" env-default:"5432"`
	AdminUser      string `env:"PG_ADMIN_USER" env-default:"postgres"`
}

type RegistryConfig struct {
	Backend string `env:"REGISTRY_BACKEND" env-default:"memory"`
	DataDir string `env:"REGISTRY_DATA_DIR" env-default:"./registry-data"`

	Host     string `env:"REGISTRY_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"REGISTRY_PG_PORT" env-default:"5432"`
	Database string `env:"REGISTRY_PG_DATABASE" env-default:"role_registry_db"`
	User     string `env:"REGISTRY_PG_USER" env-default:"registry"`
	Password string `env:"REGISTRY_PG_PASSWORD" env-default:"pwd"`
}

type JwtConfig struct {
	Enabled   bool   `env:"JWT_AUTH_ENABLED" env-default:"false"`
	JwtSecret string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
}

type Config struct {
	PoolConfig     PoolConfig
	RegistryConfig RegistryConfig
	JwtConfig      JwtConfig
	AppConfig      app.AppConfig
}

func newRegistryRepository(cfg RegistryConfig) (registry.RegistryRepository, error) {
	switch cfg.Backend {
	case "postgres":
		pool, err := pgxpool.New(context.Background(), registryConnString(cfg))
		if err != nil {
			return nil, err
		}
		return registry.NewPostgresRegistryRepository(pool), nil
	case "file":
		return registry.NewFileRegistryRepository(cfg.DataDir)
	default:
		return registry.NewInMemRegistryRepository(), nil
	}
}

func registryConnString(cfg RegistryConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database)
}

func newPoolConfig(cfg PoolConfig) connpool.Config {
	poolCfg := connpool.DefaultConfig()
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxOverflow = cfg.MaxOverflow
	poolCfg.AcquireTimeout = time.Duration(cfg.AcquireTimeout) * time.Second
	return poolCfg
}

func main() {
	godotenv.Load()

	config := Config{}
	cleanenv.ReadEnv(&config)

	logHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(logHandler))

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	poolCfg := newPoolConfig(config.PoolConfig)

	creds := connpool.EnvCredentialSource{
		User:   config.PoolConfig.AdminUser,
		Prefix: "PG_ADMIN_PASSWORD",
	}

	var connString connpool.ConnStringFunc
	switch config.PoolConfig.ConnMode {
	case "tcp":
		connString = connpool.TCPConnString(config.PoolConfig.TCPHost, config.PoolConfig.TCPPort)
	default:
		connString = connpool.CloudSQLSocketConnString(config.PoolConfig.SocketDir)
	}

	pools := connpool.NewManager(poolCfg, creds, connpool.WithConnStringFunc(connString))
	defer pools.Close()

	repo, err := newRegistryRepository(config.RegistryConfig)
	if err != nil {
		slog.Error("Failed creating registry repository", "backend", config.RegistryConfig.Backend, "err", err)
		os.Exit(-1)
	}

	plugins := roledef.NewRegistry()
	plugins.Register(roledef.NewStandardRolePlugin())

	roleService := rolemgr.NewRoleService(plugins, repo, pools)
	permissionService := permission.NewPermissionService(pools, permission.IAMIdentityValidator{})

	roleHandler := rolemgr.NewHandler(roleService)
	permissionHandler := permission.NewHandler(permissionService)

	registerAPI := func(r chi.Router) {
		r.Route("/api", func(r chi.Router) {
			roleHandler.RegisterRoutes(r)
			permissionHandler.RegisterRoutes(r)
			r.Get("/pools", func(w http.ResponseWriter, r *http.Request) {
				render.JSON(w, r, pools.Stats())
			})
		})
	}

	if config.JwtConfig.Enabled {
		tokenAuth := jwtauth.New("HS256", []byte(config.JwtConfig.JwtSecret), nil)
		server.R.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(tokenAuth))
			r.Use(jwtauth.Authenticator(tokenAuth))
			registerAPI(r)
		})
	} else {
		server.R.Group(registerAPI)
	}

	server.Run()
}
