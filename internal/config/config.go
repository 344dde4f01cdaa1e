package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Either DATABASE_URL or the discrete DB_* variables.
	DatabaseURL string
	DBHost      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBPort      string

	JWTSecret string

	FrontendURL string
	BackendURL  string

	// SSLCommerz hosted checkout credentials.
	SSLCStoreID       string
	SSLCStorePassword string
	SSLCBaseURL       string

	CourierBaseURL string
	CourierAPIKey  string

	ResendAPIKey string
	EmailFrom    string
	NotifyEmail  string

	FeePercent       int64
	InspectionWindow time.Duration
	SweepInterval    time.Duration
}

func Load() Config {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBHost:            os.Getenv("DB_HOST"),
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBName:            os.Getenv("DB_NAME"),
		DBPort:            os.Getenv("DB_PORT"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		FrontendURL:       getenv("FRONTEND_URL", "http://localhost:5173"),
		BackendURL:        getenv("BACKEND_URL", "http://localhost:8080"),
		SSLCStoreID:       os.Getenv("SSLC_STORE_ID"),
		SSLCStorePassword: os.Getenv("SSLC_STORE_PASSWORD"),
		SSLCBaseURL:       getenv("SSLC_BASE_URL", "https://sandbox.sslcommerz.com"),
		CourierBaseURL:    getenv("COURIER_BASE_URL", "https://api-hermes.pathao.com"),
		CourierAPIKey:     os.Getenv("COURIER_API_KEY"),
		ResendAPIKey:      os.Getenv("RESEND_API_KEY"),
		EmailFrom:         getenv("EMAIL_FROM", "escrow@bechedin.com"),
		NotifyEmail:       os.Getenv("NOTIFY_EMAIL"),
		FeePercent:        getenvInt("FEE_PERCENT", 5),
		InspectionWindow:  time.Duration(getenvInt("INSPECTION_WINDOW_HOURS", 72)) * time.Hour,
		SweepInterval:     getenvDuration("SWEEP_INTERVAL", time.Minute),
	}

	log.Printf("[config] PORT=%s FEE_PERCENT=%d INSPECTION_WINDOW=%s SWEEP_INTERVAL=%s",
		cfg.Port, cfg.FeePercent, cfg.InspectionWindow, cfg.SweepInterval)
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
