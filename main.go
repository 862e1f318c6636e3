package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"taskmarket-api/api"
	"taskmarket-api/domain"
	"taskmarket-api/geocode"
	"taskmarket-api/storage"
)

const defaultGeocoderURL = "https://nominatim.openstreetmap.org"

func main() {
	debug := false
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		debug = true
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tasksTableName := os.Getenv("TASKS_TABLE")
	applicationsTableName := os.Getenv("APPLICATIONS_TABLE")
	locationsTableName := os.Getenv("LOCATIONS_TABLE")
	expiryQueueName := os.Getenv("EXPIRY_QUEUE")
	if connStr == "" || tasksTableName == "" || applicationsTableName == "" || locationsTableName == "" || expiryQueueName == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, tasksTableName, applicationsTableName, locationsTableName, expiryQueueName)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	rc := redis.NewClient(redisOpts)
	cached := storage.NewCache(store, rc, durationEnv("CACHE_TTL", time.Minute))
	deduper := api.NewRedisDeduper(rc, durationEnv("DEDUPER_TTL", 24*time.Hour))

	geocoderURL := os.Getenv("GEOCODER_URL")
	if geocoderURL == "" {
		geocoderURL = defaultGeocoderURL
	}
	geocoder := geocode.New(geocoderURL, os.Getenv("GEOCODER_USER_AGENT"), 0)
	resolver := domain.NewResolver(geocoder)

	ledger := domain.NewLedger(store)
	lifecycle := domain.NewLifecycle(cached, ledger)

	var auth *api.Auth
	if os.Getenv("AUTH0_TEST_MODE") == "1" {
		auth = api.NewTestAuth([]byte(os.Getenv("AUTH0_TEST_SECRET")))
	} else {
		jwtAudience := os.Getenv("AUTH0_AUDIENCE")
		authDomain := os.Getenv("AUTH0_DOMAIN")
		if jwtAudience == "" || authDomain == "" {
			log.Fatal("missing Auth0 config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", authDomain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+authDomain+"/")
	}

	otel.SetTracerProvider(sdktrace.NewTracerProvider())

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.GzipRequestMiddleware())
	if debug {
		pprof.Register(e)
	}

	logger := log.New()
	api.Register(e, api.Deps{
		Store:     cached,
		Lifecycle: lifecycle,
		Ledger:    ledger,
		Profiles:  cached,
		Resolver:  resolver,
		Auth:      auth,
		Deduper:   deduper,
		Log:       logger,
	})

	go runExpirySweeper(context.Background(), store, lifecycle)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return d
}
