package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads CALCULATOR_* and OTEL_* variables from .env when
// present. Existing process environment variables are not overridden.
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err == nil {
		return nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("load .env: %w", err)
}
