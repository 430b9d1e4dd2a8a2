package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
)

// Config holds the poller's env-driven deployment configuration.
type Config struct {
	InverterIP      string
	LocalIP         string
	Model           string
	ScanInterval    int
	HTTPAddress     string
	MQTTBrokerURL   string
	MQTTTopicPrefix string
	AuditDBPath     string
	LogLevel        string
}

// Load reads the environment (populated from a .env file in development,
// loaded by main's init() the same way the teacher loads it) and applies
// defaults. InverterIP has no default — its absence is a fatal
// misconfiguration the caller should check for.
func Load() (*Config, error) {
	inverterIP := os.Getenv("INVERTER_IP")
	if inverterIP == "" {
		return nil, fmt.Errorf("INVERTER_IP is required")
	}

	localIP := getEnv("LOCAL_IP", "")
	if localIP == "" {
		detected, err := detectLocalIP(inverterIP)
		if err != nil {
			return nil, fmt.Errorf("LOCAL_IP not set and auto-detection failed: %w", err)
		}
		localIP = detected
	}

	cfg := &Config{
		InverterIP:      inverterIP,
		LocalIP:         localIP,
		Model:           getEnv("INVERTER_MODEL", "ISOLAR_SMG_II_11K"),
		ScanInterval:    getEnvInt("SCAN_INTERVAL", 30),
		HTTPAddress:     getEnv("HTTP_ADDRESS", ":8098"),
		MQTTBrokerURL:   getEnv("MQTT_BROKER_URL", ""),
		MQTTTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "easun"),
		AuditDBPath:     getEnv("AUDIT_DB_PATH", "./isolar-poller.db"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	log.Printf("📋 Configuration loaded:")
	log.Printf("   Inverter: %s (model %s)", cfg.InverterIP, cfg.Model)
	log.Printf("   Local IP: %s", cfg.LocalIP)
	log.Printf("   Scan interval: %ds", cfg.ScanInterval)
	log.Printf("   HTTP address: %s", cfg.HTTPAddress)
	log.Printf("   MQTT: %s", boolToStatus(cfg.MQTTBrokerURL != ""))
	log.Printf("   Audit DB: %s", cfg.AuditDBPath)
	log.Printf("   Log level: %s", cfg.LogLevel)

	return cfg, nil
}

// detectLocalIP finds the local address the OS would use to reach
// inverterIP, without sending any traffic.
func detectLocalIP(inverterIP string) (string, error) {
	conn, err := net.Dial("udp", net.JoinHostPort(inverterIP, "80"))
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func boolToStatus(b bool) string {
	if b {
		return "✅ enabled"
	}
	return "❌ disabled"
}
