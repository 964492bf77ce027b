package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const APIKeyEnv = "OPENAI_API_KEY"

// EnvFile resolves and stores the API key in the process environment and a
// dotenv file. The key is stored in plain text.
type EnvFile struct {
	path string
}

func NewEnvFile(path string) *EnvFile {
	return &EnvFile{path: path}
}

// APIKey returns OPENAI_API_KEY from the environment, else from the file.
// A missing file yields an empty key.
func (e *EnvFile) APIKey(_ context.Context) (string, error) {
	if v := strings.TrimSpace(os.Getenv(APIKeyEnv)); v != "" {
		return v, nil
	}
	if e.path == "" {
		return "", nil
	}
	values, err := godotenv.Read(e.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("config: read %s: %w", e.path, err)
	}
	return strings.TrimSpace(values[APIKeyEnv]), nil
}

// SaveAPIKey sets OPENAI_API_KEY in the file, keeping its other entries.
func (e *EnvFile) SaveAPIKey(key string) error {
	if e.path == "" {
		return errors.New("config: no env file configured")
	}
	values, err := godotenv.Read(e.path)
	if errors.Is(err, fs.ErrNotExist) {
		values = map[string]string{}
	} else if err != nil {
		return fmt.Errorf("config: read %s: %w", e.path, err)
	}
	values[APIKeyEnv] = key
	if err := godotenv.Write(values, e.path); err != nil {
		return fmt.Errorf("config: write %s: %w", e.path, err)
	}
	if err := os.Chmod(e.path, 0o600); err != nil {
		return fmt.Errorf("config: chmod %s: %w", e.path, err)
	}
	return nil
}
