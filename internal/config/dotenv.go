package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// DotenvFile is read from the working directory before the environment.
const DotenvFile = ".env"

// LoadDotenv copies the variables in path into the process environment.
// Variables already set win over the file. A missing file is not an error.
func LoadDotenv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}
