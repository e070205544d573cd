package progress

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpinnerSilentWithoutTerminal(t *testing.T) {
	t.Parallel()

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	s := NewSpinner(f)
	s.Start("Fetching wasmer releases...")
	s.Stop()
	s.Stop()

	raw, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestSpinnerAnimatesAndClears(t *testing.T) {
	t.Parallel()

	var out safeBuffer
	s := &Spinner{out: &out, tty: true}

	s.Start("Downloading wasmer 4.2.0...")
	time.Sleep(3 * tickInterval)
	s.Stop()

	written := out.String()
	assert.Contains(t, written, "Downloading wasmer 4.2.0...")
	assert.True(t, strings.HasSuffix(written, "\r"), "the spinner line should be cleared")

	// A stopped spinner can be started again.
	s.Start("Installing wasmer 4.2.0...")
	s.Stop()
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
