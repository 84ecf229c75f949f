package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/emergency-hub/backend/internal/analysis/category"
	"github.com/zhouzirui/emergency-hub/backend/internal/model/facility"
)

func TestReloadKeepsTableOnBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routing:\n  police: [pickpocket]\n"), 0o600))

	router := category.NewRouter(nil)
	w := NewTermsWatcher(path, router)
	require.True(t, w.Reload())
	require.True(t, router.Classify("a pickpocket took it").Has(facility.Police))

	require.NoError(t, os.WriteFile(path, []byte("routing: [unclosed\n"), 0o600))
	require.False(t, w.Reload())
	require.True(t, router.Classify("a pickpocket took it").Has(facility.Police))
}

func TestStartPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "terms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routing:\n  fire: [wildfire]\n"), 0o600))

	router := category.NewRouter(nil)
	w := NewTermsWatcher(path, router)
	require.True(t, w.Reload())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.True(t, router.Classify("flash flood").General())

	// An unrelated file in the same directory must not matter.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("routing:\n  fire: [flash flood]\n"), 0o600))

	require.Eventually(t, func() bool {
		return router.Classify("flash flood").Has(facility.Fire)
	}, 3*time.Second, 20*time.Millisecond)
}

func TestStartFailsForMissingDirectory(t *testing.T) {
	w := NewTermsWatcher(filepath.Join(t.TempDir(), "nope", "terms.yaml"), category.NewRouter(nil))
	require.Error(t, w.Start(context.Background()))
}
