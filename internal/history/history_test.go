package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cetp/sentinel/internal/stream"
)

func TestCSVLoader(t *testing.T) {
	dir := t.TempDir()
	csv := "s_no,time,factory_id,cod,bod,ph,tss\n" +
		"1,2026-02-01 12:00,FACTORY_B,450,180,6.4,300\n" +
		"2,2026-02-01 12:01,FACTORY_B,,,,\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "factory_B.csv"), []byte(csv), 0o644))

	rows, err := CSVLoader{Dir: dir}.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, stream.StatusNormal, rows[0].Status)
	assert.Equal(t, stream.StatusBlackout, rows[1].Status)
}

func TestCSVLoaderMissingDir(t *testing.T) {
	_, err := CSVLoader{Dir: filepath.Join(t.TempDir(), "nope")}.Load(context.Background())
	assert.Error(t, err)
}

func TestCSVLoaderCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CSVLoader{Dir: t.TempDir()}.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
