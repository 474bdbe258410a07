// Copyright 2025 Nhat-Nguyen Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

import "time"

type Config struct {
	ServiceName    string `env:"OTEL_SERVICE_NAME" envDefault:"quotaguard"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"dev"`
	Environment    string `env:"ENVIRONMENT" envDefault:"local"`

	// Optional; if empty, the exporters rely on the standard
	// OTEL_EXPORTER_OTLP_* environment variables. Accepts either a full
	// URL ("http://otel-collector:4317") or host:port.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Protocol selects the OTLP transport: "grpc" or "http".
	Protocol string `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"grpc"`

	// Insecure disables TLS for OTLP.
	Insecure bool `env:"OTEL_EXPORTER_OTLP_INSECURE"`

	// SamplerRatio in [0,1]; 0 never samples, 1 always samples.
	SamplerRatio float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1"`

	// DisableMetrics skips MeterProvider setup entirely.
	DisableMetrics bool `env:"OTEL_METRICS_DISABLED"`

	StartupTimeout time.Duration `env:"OTEL_STARTUP_TIMEOUT" envDefault:"5s"`
}
