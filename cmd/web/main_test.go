package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_MissingConfigFile(t *testing.T) {
	code := run(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, 1, code)
}
