package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chepyr/go-kanban-board/kanban-service/db"
	"github.com/chepyr/go-kanban-board/kanban-service/handlers"
	"github.com/chepyr/go-kanban-board/kanban-service/service"
	"github.com/chepyr/go-kanban-board/kanban-service/state"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	validateEnv()
	dbConn := initDB()
	defer dbConn.Close()

	initHandlers(dbConn)
	server := initServer()
	startServer(server)
}

func validateEnv() {
	if os.Getenv("SERVER_PORT") == "" {
		log.Fatal("Environment variable SERVER_PORT must be set")
	}
	switch os.Getenv("DB_DRIVER") {
	case "sqlite3":
		if os.Getenv("SQLITE_PATH") == "" {
			log.Fatal("Environment variable SQLITE_PATH must be set for sqlite3")
		}
	case "postgres":
		requiredEnvVars := []string{
			"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
			"POSTGRES_HOST", "POSTGRES_PORT",
		}
		for _, env := range requiredEnvVars {
			if os.Getenv(env) == "" {
				log.Fatalf("Environment variable %s must be set", env)
			}
		}
	default:
		log.Fatal("Environment variable DB_DRIVER must be sqlite3 or postgres")
	}
}

func initDB() *sql.DB {
	driver := os.Getenv("DB_DRIVER")
	dsn := os.Getenv("SQLITE_PATH")
	if driver == "postgres" {
		dsn = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			os.Getenv("POSTGRES_HOST"), os.Getenv("POSTGRES_USER"),
			os.Getenv("POSTGRES_PASSWORD"), os.Getenv("POSTGRES_DB"),
			os.Getenv("POSTGRES_PORT"))
	}

	dbConn, err := db.Connect(driver, dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.Migrate(dbConn); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	return dbConn
}

func initHandlers(dbConn *sql.DB) *handlers.Handler {
	taskService := service.NewTaskService(dbConn)
	handler := &handlers.Handler{
		Service:      taskService,
		ImportExport: service.NewImportExportService(dbConn),
		Board:        state.NewBoardCache(taskService),
		RateLimiter:  handlers.NewRateLimiter(5, time.Second),
	}
	http.HandleFunc("/api/tasks", handler.HandleTasks)
	http.HandleFunc("/api/tasks/", handler.HandleTaskByID)
	http.HandleFunc("/api/tasks/export", handler.HandleExport)
	http.HandleFunc("/api/tasks/import", handler.HandleImport)
	http.HandleFunc("/api/tasks/restore", handler.HandleRestore)
	http.HandleFunc("/api/board", handler.HandleBoard)
	return handler
}

func initServer() *http.Server {
	return &http.Server{
		Addr: ":" + os.Getenv("SERVER_PORT"),
	}
}

func startServer(server *http.Server) {
	log.Printf("Starting kanban server on :%s", os.Getenv("SERVER_PORT"))

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
