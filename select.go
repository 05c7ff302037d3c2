package corplink

import (
	"context"
	"fmt"
	"time"

	"github.com/bradenaw/juniper/xslices"
	"github.com/sirupsen/logrus"
)

// Strategy selects one endpoint among the candidates.
type Strategy string

const (
	// StrategyLatency probes every candidate and picks the fastest.
	StrategyLatency Strategy = "latency"

	// StrategyDefault picks the first candidate that answers a probe.
	StrategyDefault Strategy = "default"
)

// ParseStrategy validates a strategy name. An empty name is the default strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case "", StrategyDefault:
		return StrategyDefault, nil

	case StrategyLatency:
		return StrategyLatency, nil

	default:
		return "", &ConfigError{Field: "vpn_select_strategy", Reason: fmt.Sprintf("unsupported strategy %q", name)}
	}
}

// Prober measures the round trip to a candidate.
type Prober interface {
	Ping(ctx context.Context, info VPNInfo) (time.Duration, error)
}

// Select picks an endpoint. Candidates not matching the pinned name, or with an unknown protocol mode, are dropped.
// A probe failing because the session ended stops the selection.
func Select(ctx context.Context, candidates []VPNInfo, strategy Strategy, pinned string, prober Prober) (VPNInfo, error) {
	strategy, err := ParseStrategy(string(strategy))
	if err != nil {
		return VPNInfo{}, err
	}

	candidates = filterCandidates(candidates, pinned)

	switch strategy {
	case StrategyLatency:
		return selectByLatency(ctx, candidates, prober)

	default:
		return selectFirstAvailable(ctx, candidates, prober)
	}
}

func filterCandidates(candidates []VPNInfo, pinned string) []VPNInfo {
	if pinned != "" {
		candidates = xslices.Filter(candidates, func(info VPNInfo) bool {
			if info.EnName != pinned {
				logrus.WithFields(logrus.Fields{
					"pkg":    "go-corplink",
					"server": info.EnName,
					"pinned": pinned,
				}).Info("Skipping server not matching pinned name")

				return false
			}

			return true
		})
	}

	return xslices.Filter(candidates, func(info VPNInfo) bool {
		switch info.ProtocolMode {
		case ProtocolTCP, ProtocolUDP:
			return true

		default:
			logrus.WithFields(logrus.Fields{
				"pkg":    "go-corplink",
				"server": info.EnName,
				"mode":   info.ProtocolMode,
			}).Info("Skipping server with unsupported protocol mode")

			return false
		}
	})
}

func selectByLatency(ctx context.Context, candidates []VPNInfo, prober Prober) (VPNInfo, error) {
	var (
		best    VPNInfo
		bestRTT time.Duration
		found   bool
	)

	for _, info := range candidates {
		if err := ctx.Err(); err != nil {
			return VPNInfo{}, err
		}

		rtt, err := prober.Ping(ctx, info)
		if IsLogout(err) {
			return VPNInfo{}, err
		} else if err != nil {
			logProbeFailure(info, err)
			continue
		}

		logrus.WithFields(logrus.Fields{
			"pkg":     "go-corplink",
			"server":  info.EnName,
			"latency": rtt.Milliseconds(),
		}).Info("Probed server")

		if !found || rtt < bestRTT {
			best, bestRTT, found = info, rtt, true
		}
	}

	if !found {
		return VPNInfo{}, ErrNoVPNAvailable
	}

	return best, nil
}

func selectFirstAvailable(ctx context.Context, candidates []VPNInfo, prober Prober) (VPNInfo, error) {
	for _, info := range candidates {
		if err := ctx.Err(); err != nil {
			return VPNInfo{}, err
		}

		if _, err := prober.Ping(ctx, info); IsLogout(err) {
			return VPNInfo{}, err
		} else if err != nil {
			logProbeFailure(info, err)
			continue
		}

		return info, nil
	}

	return VPNInfo{}, ErrNoVPNAvailable
}

func logProbeFailure(info VPNInfo, err error) {
	logrus.WithFields(logrus.Fields{
		"pkg":    "go-corplink",
		"server": info.EnName,
		"addr":   info.apiAddr(),
	}).WithError(err).Warn("Failed to probe server")
}
