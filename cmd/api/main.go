// cmd/api/main.go
// Main entry point for the application
// This file bootstraps all components and starts the server

package main

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "net/http"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/go-redis/redis/v8"
    "github.com/gorilla/mux"
    "github.com/jmoiron/sqlx"
    "github.com/joho/godotenv"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    // Internal packages
    "github.com/varsharaodevaraj/wardrobe-nearby-chat/internal/auth"
    "github.com/varsharaodevaraj/wardrobe-nearby-chat/internal/chat"
    "github.com/varsharaodevaraj/wardrobe-nearby-chat/internal/common/database"
    "github.com/varsharaodevaraj/wardrobe-nearby-chat/internal/config"
)

func main() {
    log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

    log.Println("========================================")
    log.Println("🚀 Starting Wardrobe Nearby Chat API")
    log.Println("========================================")

    // 1. Load environment variables
    log.Println("📁 Step 1: Loading .env file...")
    if err := godotenv.Load(); err != nil {
        log.Printf("⚠️  Warning: No .env file found (%v), using environment variables", err)
    } else {
        log.Println("✅ .env file loaded successfully")
    }

    // 2. Load and validate configuration
    log.Println("\n📋 Step 2: Loading configuration...")
    cfg := config.Load()
    if err := cfg.Validate(); err != nil {
        log.Fatal("❌ Configuration validation failed:", err)
    }
    log.Println("✅ Configuration loaded")

    // 3. Connect to PostgreSQL
    log.Println("\n🗄️  Step 3: Connecting to PostgreSQL...")
    db, err := database.NewPostgresDBFromURL(cfg.DatabaseURL)
    if err != nil {
        log.Fatal("❌ Failed to connect to PostgreSQL:", err)
    }
    defer db.Close()
    log.Println("✅ Connected to PostgreSQL successfully")

    // 4. Connect to Redis (optional)
    log.Println("\n📮 Step 4: Connecting to Redis...")
    var redisClient *redis.Client
    if cfg.RedisURL != "" {
        redisClient, err = database.NewRedisClientFromURL(cfg.RedisURL)
        if err != nil {
            if cfg.IsProduction() {
                log.Fatal("❌ Redis is required in production: ", err)
            }
            log.Printf("⚠️  Redis unavailable (%v), continuing without Redis", err)
            redisClient = nil
        } else {
            defer redisClient.Close()
            log.Println("✅ Connected to Redis successfully")
        }
    } else {
        log.Println("⚠️  Redis URL not configured, skipping Redis connection")
    }

    // 5. Run database migrations
    log.Println("\n🔨 Step 5: Running database migrations...")
    if err := runMigrations(db); err != nil {
        log.Fatal("❌ Failed to run migrations: ", err)
    }
    log.Println("✅ Database migrations completed")

    // 6. Initialize Auth system
    log.Println("\n🔐 Step 6: Initializing authentication system...")
    authRepo := auth.NewPostgresRepository(db)
    authService := auth.NewService(authRepo, redisClient, auth.Config{
        JWTSecret:          cfg.JWTSecret,
        BCryptCost:         cfg.BCryptCost,
        AccessTokenExpiry:  cfg.AccessTokenExpiry,
        RefreshTokenExpiry: cfg.RefreshTokenExpiry,
    })
    authHandler := auth.NewHandler(authService)
    authMiddleware := auth.NewMiddleware(authService)
    log.Println("✅ Authentication system initialized")

    // 7. Initialize Chat module
    log.Println("\n💬 Step 7: Initializing Chat module...")
    chatRepo := chat.NewPostgresRepository(db)
    chatService := chat.NewService(chatRepo)
    chatService.SetTypingExpiry(cfg.TypingExpiry)

    presence := chat.NewRegistry(redisClient, cfg.PresenceTTL)
    hub := chat.NewHub(chatService, presence, authService)
    hub.SetMessageLimit(int64(cfg.MessageMaxBytes))

    chatHandler := chat.NewHandler(chatService, hub, checkOrigin(cfg.AllowedOrigins))
    log.Println("✅ Chat module initialized")

    // 8. Setup routes
    log.Println("\n🛣️  Step 8: Setting up routes...")
    router := mux.NewRouter()

    router.HandleFunc("/health", healthCheck).Methods("GET")
    router.Handle("/metrics", promhttp.Handler()).Methods("GET")

    auth.RegisterRoutes(router, authHandler)
    log.Println("   ✅ Auth routes registered")

    chat.RegisterRoutes(router, chatHandler, authMiddleware.Authenticate)
    log.Println("   ✅ Chat routes registered")

    router.Use(loggingMiddleware)
    router.Use(corsMiddleware(cfg.AllowedOrigins))

    // 9. Create and start HTTP server
    srv := &http.Server{
        Addr:         fmt.Sprintf(":%s", cfg.Port),
        Handler:      router,
        ReadTimeout:  15 * time.Second,
        WriteTimeout: 15 * time.Second,
        IdleTimeout:  60 * time.Second,
    }

    go func() {
        log.Println("\n========================================")
        if cfg.IsDevelopment() {
            log.Printf("🚀 Server starting on http://localhost%s", srv.Addr)
        } else {
            log.Printf("🚀 Server listening on %s", srv.Addr)
        }
        log.Printf("🌍 Environment: %s", cfg.Environment)
        log.Println("========================================")

        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatal("❌ Failed to start server:", err)
        }
    }()

    // Wait for interrupt signal
    quit := make(chan os.Signal, 1)
    signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
    <-quit

    log.Println("\n⚠️  Shutdown signal received...")

    log.Println("   - Closing websocket connections...")
    hub.Shutdown()

    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()

    if err := srv.Shutdown(ctx); err != nil {
        log.Fatal("❌ Server forced to shutdown:", err)
    }

    log.Println("✅ Server exited gracefully")
}

// runMigrations applies the schema. Idempotent; every statement is
// IF NOT EXISTS.
func runMigrations(db *sqlx.DB) error {
    migrations := []string{
        `CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            username VARCHAR(30) UNIQUE NOT NULL,
            email VARCHAR(255) UNIQUE NOT NULL,
            password_hash VARCHAR(255) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,

        // One conversation per unordered pair; the unique index is what makes
        // concurrent first contact converge on a single row
        `CREATE TABLE IF NOT EXISTS conversations (
            id BIGSERIAL PRIMARY KEY,
            user_low BIGINT NOT NULL,
            user_high BIGINT NOT NULL,
            related_item_id BIGINT,
            related_item_name TEXT,
            related_item_image TEXT,
            is_active BOOLEAN NOT NULL DEFAULT true,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CONSTRAINT conversations_pair_order CHECK (user_low < user_high),
            CONSTRAINT conversations_pair_unique UNIQUE (user_low, user_high)
        )`,

        `CREATE TABLE IF NOT EXISTS conversation_participants (
            conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL,
            unread_count INTEGER NOT NULL DEFAULT 0,
            typing_at TIMESTAMPTZ,
            PRIMARY KEY (conversation_id, user_id)
        )`,

        // sender_id is NULL for system messages
        `CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id BIGINT,
            message_type VARCHAR(20) NOT NULL DEFAULT 'text',
            content TEXT NOT NULL,
            request_item_id BIGINT,
            request_item_name TEXT,
            request_item_image TEXT,
            status VARCHAR(20) NOT NULL DEFAULT 'sent',
            is_read BOOLEAN NOT NULL DEFAULT false,
            read_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,

        `CREATE INDEX IF NOT EXISTS idx_messages_conversation
            ON messages(conversation_id, created_at, id)`,

        `CREATE INDEX IF NOT EXISTS idx_conversations_last_message
            ON conversations(last_message_at DESC)`,
    }

    for i, migration := range migrations {
        if _, err := db.Exec(migration); err != nil {
            return fmt.Errorf("migration %d failed: %w", i+1, err)
        }
    }
    return nil
}

var startTime = time.Now()

// healthCheck returns server health status
func healthCheck(w http.ResponseWriter, r *http.Request) {
    response := map[string]interface{}{
        "status":    "healthy",
        "timestamp": time.Now().Format(time.RFC3339),
        "uptime":    time.Since(startTime).String(),
    }

    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(http.StatusOK)
    json.NewEncoder(w).Encode(response)
}

// loggingMiddleware logs all requests
func loggingMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()

        wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
        next.ServeHTTP(wrapped, r)

        log.Printf("← %s %s [%d] %v", r.Method, r.RequestURI, wrapped.statusCode, time.Since(start))
    })
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
    http.ResponseWriter
    statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
    rw.statusCode = code
    rw.ResponseWriter.WriteHeader(code)
}

// corsMiddleware handles CORS
func corsMiddleware(allowedOrigins string) mux.MiddlewareFunc {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            origin := r.Header.Get("Origin")
            if origin != "" && originAllowed(origin, allowedOrigins) {
                w.Header().Set("Access-Control-Allow-Origin", origin)
                w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
                w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
            }

            if r.Method == http.MethodOptions {
                w.WriteHeader(http.StatusNoContent)
                return
            }

            next.ServeHTTP(w, r)
        })
    }
}

// checkOrigin builds the websocket origin check from the configured list
func checkOrigin(allowedOrigins string) func(r *http.Request) bool {
    return func(r *http.Request) bool {
        origin := r.Header.Get("Origin")
        if origin == "" {
            return true
        }
        return originAllowed(origin, allowedOrigins)
    }
}

func originAllowed(origin, allowedOrigins string) bool {
    if allowedOrigins == "" || allowedOrigins == "*" {
        return true
    }
    for _, allowed := range strings.Split(allowedOrigins, ",") {
        if strings.EqualFold(strings.TrimSpace(allowed), origin) {
            return true
        }
    }
    return false
}
