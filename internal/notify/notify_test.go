package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyEventFilters(t *testing.T) {
	require := require.New(t)
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"window_started", " payout_failed "}, discardLogger())

	ctx := context.Background()
	require.NoError(n.NotifyEvent(ctx, domain.Event{Type: domain.EventWindowStarted, Round: 3}))
	require.NoError(n.NotifyEvent(ctx, domain.Event{Type: domain.EventBetPlaced, Round: 3}))
	require.NoError(n.NotifyEvent(ctx, domain.Event{Type: domain.EventPayoutFailed, Round: 3}))

	require.Equal([]string{"Round 3: betting open", "Round 3: payout failed"}, s.titles)
}

func TestNotifyEventEmptyFilterForwardsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())
	require.NoError(t, n.NotifyEvent(context.Background(), domain.Event{Type: domain.EventBetPlaced}))
	require.Len(t, s.titles, 1)
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	require := require.New(t)
	boom := errors.New("boom")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.ErrorIs(err, boom)
	require.Contains(err.Error(), "1 sender(s) failed")
	require.Len(good.titles, 1)
}

func TestNilNotifierIsDisabled(t *testing.T) {
	var n *Notifier
	require.False(t, n.Enabled())
	require.NoError(t, n.NotifyEvent(context.Background(), domain.Event{Type: domain.EventWindowClosed}))
}

func TestRender(t *testing.T) {
	require := require.New(t)
	c := common.HexToAddress("0xc1")
	b := common.HexToAddress("0xb1")
	up := true

	title, msg := Render(domain.Event{Type: domain.EventWindowStarted, Round: 1, Candidates: []domain.Address{c}})
	require.Equal("Round 1: betting open", title)
	require.Contains(msg, "1 candidates")
	require.Contains(msg, c.Hex())

	_, msg = Render(domain.Event{
		Type: domain.EventBetPlaced, Bettor: &b, Candidate: &c, Position: &up, Amount: uint256.NewInt(900),
	})
	require.Contains(msg, "bet 900 up on")

	_, msg = Render(domain.Event{Type: domain.EventPayoutFailed, Bettor: &b, Error: "transfer failed"})
	require.Contains(msg, "amount 0: transfer failed")
}

func TestSendersPostJSON(t *testing.T) {
	require := require.New(t)

	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL + "/hook")
	require.NoError(d.Send(context.Background(), "T", "M"))
	require.Equal("/hook", path)
	require.Equal("betengine", got["username"])
	embeds, ok := got["embeds"].([]any)
	require.True(ok)
	require.Len(embeds, 1)
	embed := embeds[0].(map[string]any)
	require.Equal("T", embed["title"])
	require.Equal("M", embed["description"])
	require.Equal(float64(colourInfo), embed["color"])
	require.Equal(map[string]any{"parse": []any{}}, got["allowed_mentions"])
	got = nil

	tg := NewTelegramSender("tok", "42")
	tg.baseURL = srv.URL
	require.NoError(tg.Send(context.Background(), "T", "M"))
	require.Equal("/bottok/sendMessage", path)
	require.Equal("42", got["chat_id"])
	require.Equal("*T*\nM", got["text"])
}

func TestSenderRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "T", "M")
	require.Error(t, err)
	require.Contains(t, err.Error(), "discord: unexpected status 400")
}

func TestDiscordEmbedColour(t *testing.T) {
	require := require.New(t)
	require.Equal(colourFailure, embedColour("Round 3: payout failed"))
	require.Equal(colourSettled, embedColour("Round 3: settled"))
	require.Equal(colourSwept, embedColour("Round 3: pool swept to treasury"))
	require.Equal(colourInfo, embedColour("Round 3: betting open"))

	require.Equal("abc", truncate("abc", 3))
	require.Equal("ab…", truncate("abcd", 3))
}
