package keeshond

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRxLogWritesCSV(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "traffic.csv")
	var l, err = NewRxLog(path)
	require.NoError(t, err)
	defer l.Close()

	var b = newBench(AX25InterfaceConfig{})
	var detach = l.Attach(b.ax)
	defer detach()

	var raw, encErr = mustUI("VK4ABC>APZKSH,WIDE2-1", ">On the air").Encode()
	require.NoError(t, encErr)
	b.receive(raw)
	l.Close()

	var content, readErr = os.ReadFile(path)
	require.NoError(t, readErr)

	var lines = strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 2, "header plus one row")
	assert.Contains(t, lines[0], "source,destination")
	assert.Contains(t, lines[1], "VK4ABC")
	assert.Contains(t, lines[1], "APZKSH")
	assert.Contains(t, lines[1], "WIDE2-1")
	assert.Contains(t, lines[1], ">On the air")
}

func TestRxLogBadPattern(t *testing.T) {
	var _, err = NewRxLog("%Q-is-not-a-thing")
	assert.Error(t, err)
}
