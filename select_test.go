package corplink

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	rtts   map[string]time.Duration
	errs   map[string]error
	probed []string
}

func (p *fakeProber) Ping(_ context.Context, info VPNInfo) (time.Duration, error) {
	p.probed = append(p.probed, info.EnName)

	if err, ok := p.errs[info.EnName]; ok {
		return 0, err
	}

	rtt, ok := p.rtts[info.EnName]
	if !ok {
		return 0, errors.New("unreachable")
	}

	return rtt, nil
}

func candidates() []VPNInfo {
	return []VPNInfo{
		{EnName: "hk", ProtocolMode: ProtocolUDP},
		{EnName: "legacy", ProtocolMode: 3},
		{EnName: "sg", ProtocolMode: ProtocolTCP},
		{EnName: "jp", ProtocolMode: ProtocolUDP},
	}
}

func TestSelect_Latency(t *testing.T) {
	prober := &fakeProber{rtts: map[string]time.Duration{
		"hk":     80 * time.Millisecond,
		"legacy": time.Millisecond,
		"sg":     20 * time.Millisecond,
		"jp":     40 * time.Millisecond,
	}}

	info, err := Select(context.Background(), candidates(), StrategyLatency, "", prober)
	require.NoError(t, err)
	require.Equal(t, "sg", info.EnName)

	// Unknown protocol modes are never probed.
	require.Equal(t, []string{"hk", "sg", "jp"}, prober.probed)
}

func TestSelect_LatencyTieKeepsFirst(t *testing.T) {
	prober := &fakeProber{rtts: map[string]time.Duration{
		"hk": 20 * time.Millisecond,
		"sg": 20 * time.Millisecond,
		"jp": 20 * time.Millisecond,
	}}

	info, err := Select(context.Background(), candidates(), StrategyLatency, "", prober)
	require.NoError(t, err)
	require.Equal(t, "hk", info.EnName)
}

func TestSelect_LatencySkipsUnreachable(t *testing.T) {
	prober := &fakeProber{rtts: map[string]time.Duration{
		"jp": 300 * time.Millisecond,
	}}

	info, err := Select(context.Background(), candidates(), StrategyLatency, "", prober)
	require.NoError(t, err)
	require.Equal(t, "jp", info.EnName)
}

func TestSelect_Default(t *testing.T) {
	prober := &fakeProber{rtts: map[string]time.Duration{
		"sg": 80 * time.Millisecond,
		"jp": 20 * time.Millisecond,
	}}

	info, err := Select(context.Background(), candidates(), StrategyDefault, "", prober)
	require.NoError(t, err)
	require.Equal(t, "sg", info.EnName)

	// Probing stops at the first answer.
	require.Equal(t, []string{"hk", "sg"}, prober.probed)
}

func TestSelect_EmptyStrategyIsDefault(t *testing.T) {
	prober := &fakeProber{rtts: map[string]time.Duration{
		"hk": 80 * time.Millisecond,
		"jp": 20 * time.Millisecond,
	}}

	info, err := Select(context.Background(), candidates(), "", "", prober)
	require.NoError(t, err)
	require.Equal(t, "hk", info.EnName)
}

func TestSelect_Pinned(t *testing.T) {
	prober := &fakeProber{rtts: map[string]time.Duration{
		"hk": 10 * time.Millisecond,
		"jp": 20 * time.Millisecond,
	}}

	info, err := Select(context.Background(), candidates(), StrategyLatency, "jp", prober)
	require.NoError(t, err)
	require.Equal(t, "jp", info.EnName)
	require.Equal(t, []string{"jp"}, prober.probed)

	_, err = Select(context.Background(), candidates(), StrategyLatency, "legacy", prober)
	require.ErrorIs(t, err, ErrNoVPNAvailable)
}

func TestSelect_NoneAvailable(t *testing.T) {
	for _, strategy := range []Strategy{StrategyLatency, StrategyDefault} {
		_, err := Select(context.Background(), candidates(), strategy, "", &fakeProber{})
		require.ErrorIs(t, err, ErrNoVPNAvailable)

		_, err = Select(context.Background(), nil, strategy, "", &fakeProber{})
		require.ErrorIs(t, err, ErrNoVPNAvailable)
	}
}

func TestSelect_LogoutStops(t *testing.T) {
	for _, strategy := range []Strategy{StrategyLatency, StrategyDefault} {
		prober := &fakeProber{
			rtts: map[string]time.Duration{"sg": 10 * time.Millisecond, "jp": 20 * time.Millisecond},
			errs: map[string]error{"hk": fmt.Errorf("%w: %w", ErrLogout, &Error{Code: 503, Message: "Service Unavailable"})},
		}

		_, err := Select(context.Background(), candidates(), strategy, "", prober)
		require.ErrorIs(t, err, ErrLogout)
		require.Equal(t, []string{"hk"}, prober.probed)
	}
}

func TestSelect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prober := &fakeProber{}

	_, err := Select(ctx, candidates(), StrategyLatency, "", prober)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, prober.probed)
}

func TestParseStrategy(t *testing.T) {
	strategy, err := ParseStrategy("")
	require.NoError(t, err)
	require.Equal(t, StrategyDefault, strategy)

	strategy, err = ParseStrategy("latency")
	require.NoError(t, err)
	require.Equal(t, StrategyLatency, strategy)

	_, err = ParseStrategy("random")

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "vpn_select_strategy", cfgErr.Field)
}
