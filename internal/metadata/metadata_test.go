package metadata

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

type jsonCodec struct{}

func (jsonCodec) Encode(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Decode(b []byte, v interface{}) error { return json.Unmarshal(b, v) }

func tempDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "metadata-test-")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestLoadMissingInfoIsNotAnError(t *testing.T) {
	s := Open(tempDir(t), "", jsonCodec{})
	info, existed, err := s.Load()
	require.NoError(t, err)
	require.False(t, existed)
	require.Equal(t, Info{}, info)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s := Open(tempDir(t), "", jsonCodec{})
	want := Info{HeadChunk: 2, HeadOffset: 128, HeadCount: 3, TailChunk: 1, TailOffset: 64, TailCount: 1, Size: 5, SerializerVersion: "1.0.0"}
	require.NoError(t, s.Save(want, true))

	got, existed, err := s.Load()
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, want, got)
}

func TestSaveLeavesNoTempFileBehind(t *testing.T) {
	dir := tempDir(t)
	s := Open(dir, "", jsonCodec{})
	require.NoError(t, s.Save(Info{Size: 1}, true))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp")
	}
}

func TestSaveAdvancesJournalToPreviousGeneration(t *testing.T) {
	s := Open(tempDir(t), "", jsonCodec{})
	first := Info{Size: 1}
	second := Info{Size: 2}

	require.NoError(t, s.Save(first, true))
	require.NoError(t, s.Save(second, true))

	data, err := os.ReadFile(s.prevPath)
	require.NoError(t, err)
	var prev Info
	require.NoError(t, jsonCodec{}.Decode(data, &prev))
	require.Equal(t, first, prev)
}

func TestLoadFallsBackToJournalWhenCanonicalIsCorrupt(t *testing.T) {
	s := Open(tempDir(t), "", jsonCodec{})
	good := Info{Size: 7}
	require.NoError(t, s.Save(good, true))
	require.NoError(t, s.Save(Info{Size: 8}, true))

	// Corrupt the canonical record in place.
	require.NoError(t, os.WriteFile(s.infoPath, []byte("not json"), 0644))

	got, existed, err := s.Load()
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, good, got)
}

func TestSaveWithoutDurableStillRenamesIntoPlace(t *testing.T) {
	dir := tempDir(t)
	s := Open(dir, "", jsonCodec{})
	want := Info{Size: 3}
	require.NoError(t, s.Save(want, false))

	got, existed, err := s.Load()
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, want, got)
}

func TestCheckSerializerVersion(t *testing.T) {
	require.NoError(t, CheckSerializerVersion(">=1.0.0 <2.0.0", ""))
	require.NoError(t, CheckSerializerVersion(">=1.0.0 <2.0.0", "1.5.0"))
	require.ErrorIs(t, CheckSerializerVersion(">=1.0.0 <2.0.0", "2.0.0"), ErrConfigMismatch)
}
