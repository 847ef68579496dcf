package config

import (
	"testing"
	"time"
)

func validBase() Config {
	return Config{
		App:     AppConfig{Env: "local", Port: 8080},
		DB:      DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "warmtransfer"},
		Redis:   RedisConfig{Host: "localhost", Port: 6379},
		Auth:    AuthConfig{JWTSecret: "secret"},
		LiveKit: LiveKitConfig{APIKey: "lk_key", APISecret: "lk_secret", WSURL: "wss://livekit.example.com"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "warmtransfer"
	c.Auth.JWTAudience = "warmtransfer-api"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Transfer.MaxWait != 5*time.Minute {
		t.Fatalf("expected default transfer wait, got %v", c.Transfer.MaxWait)
	}
	if c.Transfer.SideRoomMaxParticipants != 3 {
		t.Fatalf("expected side room cap 3, got %d", c.Transfer.SideRoomMaxParticipants)
	}
	if c.LiveKit.RoomTokenTTL != 24*time.Hour {
		t.Fatalf("expected 24h token ttl default, got %v", c.LiveKit.RoomTokenTTL)
	}
}

func TestValidate_DerivesLiveKitAPIURL(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.LiveKit.APIURL != "https://livekit.example.com" {
		t.Fatalf("expected derived https api url, got %q", c.LiveKit.APIURL)
	}

	c2 := validBase()
	c2.LiveKit.WSURL = "ws://localhost:7880"
	if err := c2.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c2.LiveKit.APIURL != "http://localhost:7880" {
		t.Fatalf("expected derived http api url, got %q", c2.LiveKit.APIURL)
	}
}
