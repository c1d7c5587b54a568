package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteDeadLetter persists validation errors as a JSON array, overwriting
// any previous run's file. An empty slice still writes "[]" so downstream
// tooling can distinguish "clean run" from "never ran".
func WriteDeadLetter(path string, errs []ValidationError) error {
	if path == "" {
		return fmt.Errorf("dead-letter path not configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("dead-letter dir: %w", err)
	}
	if errs == nil {
		errs = []ValidationError{}
	}
	buf, err := json.MarshalIndent(errs, "", "  ")
	if err != nil {
		return fmt.Errorf("dead-letter marshal: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return fmt.Errorf("dead-letter write: %w", err)
	}
	return nil
}

// ReadDeadLetter loads a previous run's file. A missing file returns an
// empty slice and no error.
func ReadDeadLetter(path string) ([]ValidationError, error) {
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dead-letter read: %w", err)
	}
	var errs []ValidationError
	if err := json.Unmarshal(buf, &errs); err != nil {
		return nil, fmt.Errorf("dead-letter parse: %w", err)
	}
	return errs, nil
}
