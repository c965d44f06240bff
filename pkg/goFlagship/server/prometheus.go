package server

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/grcorsair/flagship/internal/model"
)

type PrometheusHandler struct {
	App                 *FlagshipApplication
	EventsIn, EventsOut prometheus.Counter
	PushCnt, PollCnt    prometheus.GaugeFunc
}

var (
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "goFlagship_http_duration_seconds",
		Help: "Duration of HTTP requests.",
	}, []string{"path"})
)

func PrometheusHttpMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := mux.CurrentRoute(r)
		path, _ := route.GetPathTemplate()
		timer := prometheus.NewTimer(httpDuration.WithLabelValues(path))
		next.ServeHTTP(w, r)
		timer.ObserveDuration()
	})
}

func (app *FlagshipApplication) InitializePrometheus() {
	prometheusHandler := PrometheusHandler{
		App: app,
		EventsIn: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "goFlagship",
				Subsystem: "router",
				Name:      "events_in",
				Help:      "Events published",
			},
		),
		EventsOut: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "goFlagship",
				Subsystem: "router",
				Name:      "events_out",
				Help:      "Events delivered or acknowledged",
			},
		),
		PushCnt: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "goFlagship",
				Subsystem: "router",
				Name:      "stream_push_cnt",
				Help:      "Number of push delivery streams",
			},
			func() float64 {
				return app.countStreams(model.DeliveryPush)
			}),
		PollCnt: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "goFlagship",
				Subsystem: "router",
				Name:      "stream_poll_cnt",
				Help:      "Number of poll delivery streams",
			},
			func() float64 {
				return app.countStreams(model.DeliveryPoll)
			}),
	}
	registerCollector(prometheusHandler.EventsIn)
	registerCollector(prometheusHandler.EventsOut)
	registerCollector(prometheusHandler.PushCnt)
	registerCollector(prometheusHandler.PollCnt)

	app.Router.SetEventCounters(prometheusHandler.EventsIn, prometheusHandler.EventsOut)
	app.Stats = &prometheusHandler
}

func (app *FlagshipApplication) countStreams(method string) float64 {
	streams, err := app.Registry.ListStreams()
	if err != nil {
		return 0
	}
	count := 0
	for _, stream := range streams {
		if stream.Config.Delivery.Method == method {
			count++
		}
	}
	return float64(count)
}

func registerCollector(collector prometheus.Collector) {
	err := prometheus.Register(collector)
	if err != nil {
		log.Println("WARNING: instrumentation error:" + err.Error())
	}
}
