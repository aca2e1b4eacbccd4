package route

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Metrics(muxer *http.ServeMux) {
	muxer.Handle("GET /metrics", promhttp.Handler())
}
