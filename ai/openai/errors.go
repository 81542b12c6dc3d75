package openai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/poiesic/lectern/core"
)

// ErrEmptyResponse is returned when the model produces no choices.
var ErrEmptyResponse = errors.New("empty response from model")

// permanentStatus lists HTTP statuses a retry cannot fix: bad requests,
// rejected credentials and unknown models.
var permanentStatus = []string{"400", "401", "403", "404", "422"}

// classify marks permanent API rejections as configuration errors so
// retry loops stop early. Everything else passes through unchanged and is
// treated as transient by callers.
func classify(err error) error {
	if err == nil || errors.Is(err, core.ErrConfiguration) {
		return err
	}
	msg := err.Error()
	for _, code := range permanentStatus {
		if strings.Contains(msg, "status code: "+code) {
			return fmt.Errorf("%w: %w", core.ErrConfiguration, err)
		}
	}
	return err
}
