package main

import (
	"context"
	"encoding/json"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
	otelexport "github.com/MrEthical07/goSession/metrics/export/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// otelView collects the client's metrics through an OpenTelemetry meter
// provider and serves the latest values as flat JSON.
type otelView struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
	exporter *otelexport.OTelExporter
}

func newOTelView(c *goSession.Client) (*otelView, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	exp, err := otelexport.NewOTelExporter(provider.Meter("taskclient"), c)
	if err != nil {
		return nil, err
	}
	return &otelView{reader: reader, provider: provider, exporter: exp}, nil
}

func (v *otelView) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var rm metricdata.ResourceMetrics
	if err := v.reader.Collect(r.Context(), &rm); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	values := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] += dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(values)
}

func (v *otelView) Close() error {
	_ = v.exporter.Close()
	return v.provider.Shutdown(context.Background())
}
