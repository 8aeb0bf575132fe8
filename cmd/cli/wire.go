package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/and161185/deferlink/internal/config"
	"github.com/and161185/deferlink/internal/fingerprint"
	"github.com/and161185/deferlink/internal/referrer"
	"github.com/and161185/deferlink/internal/transport"
)

// newMatcher builds the configured transport and a func releasing its resources.
func newMatcher(cfg *config.Config, log *zap.Logger) (transport.LinkMatcher, func() error, error) {
	if cfg.Transport == config.TransportGRPC {
		cc, err := transport.DialGRPC(cfg.GRPCAddr, transport.TLSOptions{
			CAPath:             cfg.CACert,
			InsecureSkipVerify: cfg.GRPCInsecureSkipVerify,
			Plaintext:          cfg.GRPCPlaintext,
		}, cfg.APIKey)
		if err != nil {
			return nil, nil, err
		}
		return transport.NewGRPC(cc), cc.Close, nil
	}
	h, err := transport.NewHTTP(cfg.BaseURL, cfg.APIKey,
		transport.WithHTTPClient(transport.NewHTTPClient(cfg.HTTPTimeout)),
		transport.WithHTTPLogger(log),
	)
	if err != nil {
		return nil, nil, err
	}
	return h, func() error { return nil }, nil
}

// newSource returns nil on platforms without an install referrer.
func newSource(cfg *config.Config) referrer.Source {
	if !cfg.PlatformValue().HasInstallReferrer() {
		return nil
	}
	return referrer.NewOnce(referrer.Static(cfg.ReferrerToken))
}

func newCollector(cfg *config.Config, log *zap.Logger) *fingerprint.Collector {
	var locale fingerprint.LocaleSource = fingerprint.EnvLocale{}
	if cfg.Locale != "" {
		locale = fingerprint.FixedLocale(cfg.Locale)
	}
	device := fingerprint.StaticDevice{
		Vendor:   cfg.VendorID,
		Hardware: cfg.DeviceModel,
		OS:       cfg.OSVersion,
		Agent:    cfg.UserAgent,
	}
	return fingerprint.NewCollector(cfg.PlatformValue(), device, locale,
		fingerprint.WithVendorID(cfg.AllowVendorID),
		fingerprint.WithLogger(log),
	)
}

// dumpMetrics logs every counter series collected during the run.
func dumpMetrics(log *zap.Logger, g prometheus.Gatherer) {
	mfs, err := g.Gather()
	if err != nil {
		log.Warn("gather metrics", zap.Error(err))
		return
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			fields := []zap.Field{zap.String("metric", mf.GetName()), zap.Float64("value", m.GetCounter().GetValue())}
			for _, lp := range m.GetLabel() {
				fields = append(fields, zap.String(lp.GetName(), lp.GetValue()))
			}
			log.Debug("metric", fields...)
		}
	}
}
