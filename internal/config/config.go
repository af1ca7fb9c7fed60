package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the complete business configuration
type Config struct {
	Business Business `toml:"business"`
	Tax      Tax      `toml:"tax"`
	Refunds  Refunds  `toml:"refunds"`
	Delivery Delivery `toml:"delivery"`
}

// Business contains the seller identity stamped onto every invoice
type Business struct {
	Name    string `toml:"name"`
	Address string `toml:"address"`
	State   string `toml:"state"`
	GSTIN   string `toml:"gstin"`
}

// Tax contains GST computation settings
type Tax struct {
	EInvoiceThreshold float64 `toml:"einvoice_threshold"`
	InvoiceDueDays    int     `toml:"invoice_due_days"`
}

// Refunds contains cancellation and return policy settings
type Refunds struct {
	ReturnWindowDays int     `toml:"return_window_days"`
	PackingCharge    float64 `toml:"packing_charge"`
	ShippingCharge   float64 `toml:"shipping_charge"`
}

// Delivery contains notification dispatch settings
type Delivery struct {
	Channels         []string `toml:"channels"`
	MaxRetryAttempts int      `toml:"max_retry_attempts"`
	RetryIntervalMin int      `toml:"retry_interval_minutes"`
}

// Load loads configuration from a TOML file
func Load(filename string) (*Config, error) {
	config := Default()
	if _, err := toml.DecodeFile(filename, config); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	return config, nil
}

// Default returns the configuration used when no file is provided
func Default() *Config {
	return &Config{
		Business: Business{
			Name:  "PlusPoint Retail",
			State: "Karnataka",
		},
		Tax: Tax{
			EInvoiceThreshold: 500000,
			InvoiceDueDays:    30,
		},
		Refunds: Refunds{
			ReturnWindowDays: 7,
			PackingCharge:    20,
			ShippingCharge:   50,
		},
		Delivery: Delivery{
			Channels:         []string{"email", "sms", "whatsapp"},
			MaxRetryAttempts: 3,
			RetryIntervalMin: 15,
		},
	}
}

// ReturnWindow returns the configured return window as a duration
func (c *Config) ReturnWindow() time.Duration {
	return time.Duration(c.Refunds.ReturnWindowDays) * 24 * time.Hour
}
