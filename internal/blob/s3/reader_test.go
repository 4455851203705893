package s3blob

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

func TestReaderScope(t *testing.T) {
	require := require.New(t)
	require.True(inScope(settlementPrefix, SettlementKey(3, "abc")))
	require.True(inScope(settlementPrefix, RoundPrefix(3)))
	require.False(inScope(settlementPrefix, "backups/db.sql"))
	require.False(inScope(settlementPrefix, "settlements/../backups/db.sql"))
}

func TestSortOldestFirst(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	infos := []domain.BlobInfo{
		{Path: "settlements/round-1/c.json", LastModified: t0.Add(time.Minute)},
		{Path: "settlements/round-1/b.json", LastModified: t0},
		{Path: "settlements/round-1/a.json", LastModified: t0},
	}
	sortOldestFirst(infos)

	paths := make([]string, len(infos))
	for i, info := range infos {
		paths[i] = info.Path
	}
	require.Equal(t, []string{
		"settlements/round-1/a.json",
		"settlements/round-1/b.json",
		"settlements/round-1/c.json",
	}, paths)
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestCapBody(t *testing.T) {
	require := require.New(t)
	src := &closeRecorder{Reader: strings.NewReader("0123456789")}

	body := capBody(src, 4)
	got, err := io.ReadAll(body)
	require.NoError(err)
	require.Equal("0123", string(got))

	require.NoError(body.Close())
	require.True(src.closed)
}
